package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"geminichat/internal/attachment"
	"geminichat/internal/chat"
	"geminichat/internal/clipboard"
	"geminichat/internal/config"
	"geminichat/internal/highlight"
	"geminichat/internal/request"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Sender resolves one request to the reply text shown to the user.
type Sender interface {
	Send(ctx context.Context, parts []request.Part) string
}

type Exporter interface {
	Export(turns []chat.Turn) (string, error)
}

type Deps struct {
	Config   config.AppConfig
	Session  *chat.Session
	Sender   Sender
	Exporter Exporter
	// Copy defaults to clipboard.Copy.
	Copy func(ctx context.Context, text string) error
	// Load defaults to attachment.Load.
	Load func(path string) (attachment.Pending, error)
}

type mode int

const (
	modeChat mode = iota
	modeAttach
	modeSearch
)

type Model struct {
	cfg      config.AppConfig
	session  *chat.Session
	sender   Sender
	exporter Exporter
	copy     func(ctx context.Context, text string) error
	load     func(path string) (attachment.Pending, error)

	viewport viewport.Model
	help     help.Model
	spinner  spinner.Model
	input    textinput.Model
	path     textinput.Model
	search   textinput.Model
	keys     keyMap

	width  int
	height int

	mode        mode
	searchQuery string
	rendering   bool
	renderNonce int
	rendered    string
	highlighted map[string]highlight.Result
	matchLines  []int
	matchCount  int
	matchIndex  int

	status string
	alert  string
}

type replyMsg struct {
	reply string
}
type attachMsg struct {
	pending attachment.Pending
	err     error
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct {
	err error
}
type renderMsg struct {
	rendered string
	nonce    int
}

func New(deps Deps) Model {
	vp := viewport.New(60, 20)
	vp.SetContent("Starting...")

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	in := textinput.New()
	in.Placeholder = "Type your message..."
	in.Prompt = "> "
	// No limit: prompts are sent as typed or pasted.
	in.CharLimit = 0
	in.Focus()

	path := textinput.New()
	path.Placeholder = "path/to/file (png, jpg, gif, webp, pdf, txt, csv, html, css, js, json)"
	path.Prompt = "📎 "
	path.CharLimit = config.MaxPathChars

	search := textinput.New()
	search.Placeholder = "Search transcript..."
	search.Prompt = "/ "
	search.CharLimit = 256

	m := Model{
		cfg:      deps.Config,
		session:  deps.Session,
		sender:   deps.Sender,
		exporter: deps.Exporter,
		copy:     deps.Copy,
		load:     deps.Load,

		viewport: vp,
		help:     h,
		spinner:  sp,
		input:    in,
		path:     path,
		search:   search,
		keys:     defaultKeys(),

		highlighted: make(map[string]highlight.Result),
		matchIndex:  -1,
	}
	if m.copy == nil {
		m.copy = clipboard.Copy
	}
	if m.load == nil {
		m.load = attachment.Load
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.renderTranscriptCmd(m.renderNonce))
}

func (m Model) sendCmd(parts []request.Part) tea.Cmd {
	return func() tea.Msg {
		// Requests are not cancelled: every cycle resolves to a reply.
		return replyMsg{reply: m.sender.Send(context.Background(), parts)}
	}
}

func (m Model) attachCmd(path string) tea.Cmd {
	return func() tea.Msg {
		p, err := m.load(path)
		return attachMsg{pending: p, err: err}
	}
}

func (m Model) exportCmd() tea.Cmd {
	if m.exporter == nil {
		return nil
	}
	turns := m.session.Turns()
	return func() tea.Msg {
		path, err := m.exporter.Export(turns)
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd() tea.Cmd {
	reply, ok := m.session.LastReply()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{err: m.copy(ctx, reply)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		cmds = append(cmds, m.rerender())

	case replyMsg:
		if err := m.session.Resolve(msg.reply); err != nil {
			slog.Error("resolve reply", "error", err)
		}
		m.status = ""
		cmds = append(cmds, m.input.Focus(), m.rerender())

	case attachMsg:
		m.handleAttach(msg)

	case exportMsg:
		if msg.err != nil {
			slog.Error("export transcript", "error", msg.err)
			m.alert = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		switch {
		case errors.Is(msg.err, clipboard.ErrToolNotFound):
			m.alert = "Could not copy: clipboard tool not found"
		case msg.err != nil:
			m.alert = "Could not copy: " + msg.err.Error()
		default:
			m.status = "Copied last reply to clipboard"
		}

	case renderMsg:
		if msg.nonce != m.renderNonce {
			break
		}
		m.rendering = false
		m.rendered = msg.rendered
		m.highlighted = make(map[string]highlight.Result)
		m.setViewportFromRendered(true)

	case spinner.TickMsg:
		if m.session.State() == chat.Sending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.mode {
		case modeAttach:
			return m.updateAttachMode(msg)
		case modeSearch:
			return m.updateSearchMode(msg)
		}
		return m.updateChatMode(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) updateChatMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Send):
		cmd := m.submit()
		return m, cmd
	case key.Matches(msg, m.keys.Attach):
		if m.session.State() == chat.Sending {
			return m, nil
		}
		m.mode = modeAttach
		m.alert = ""
		m.input.Blur()
		m.path.SetValue("")
		cmd := m.path.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Detach):
		if _, ok := m.session.Pending(); ok {
			m.session.Detach()
			m.status = "Attachment removed"
		}
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.input.Blur()
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.NextHit):
		m.jumpToMatch(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevHit):
		m.jumpToMatch(-1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Esc):
		m.alert = ""
		if m.searchQuery != "" {
			m.searchQuery = ""
			m.setViewportFromRendered(false)
		}
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.Copy):
		cmd := m.copyCmd()
		if cmd == nil {
			m.status = "Nothing to copy yet"
		}
		return m, cmd
	}

	if m.session.State() == chat.Sending {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateAttachMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeChat
		m.path.Blur()
		cmd := m.input.Focus()
		return m, cmd
	case tea.KeyEnter:
		m.mode = modeChat
		m.path.Blur()
		path := strings.TrimSpace(m.path.Value())
		if path == "" {
			cmd := m.input.Focus()
			return m, cmd
		}
		m.status = "Loading " + path + "..."
		focus := m.input.Focus()
		return m, tea.Batch(focus, m.attachCmd(path))
	}
	var cmd tea.Cmd
	m.path, cmd = m.path.Update(msg)
	return m, cmd
}

func (m Model) updateSearchMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeChat
		m.searchQuery = ""
		m.search.SetValue("")
		m.search.Blur()
		m.setViewportFromRendered(false)
		cmd := m.input.Focus()
		return m, cmd
	case tea.KeyEnter:
		m.mode = modeChat
		m.search.Blur()
		m.searchQuery = strings.TrimSpace(m.search.Value())
		m.setViewportFromRendered(false)
		m.jumpToMatch(0)
		cmd := m.input.Focus()
		return m, cmd
	}

	before := strings.TrimSpace(m.search.Value())
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if after := strings.TrimSpace(m.search.Value()); after != before {
		m.searchQuery = after
		m.setViewportFromRendered(false)
		m.jumpToMatch(0)
	}
	return m, cmd
}

// submit hands the input to the session. While a request is in flight it does
// nothing, which keeps exactly one request cycle outstanding.
func (m *Model) submit() tea.Cmd {
	if m.session.State() == chat.Sending {
		return nil
	}
	parts, err := m.session.Submit(m.input.Value())
	switch {
	case errors.Is(err, chat.ErrEmptySubmission):
		return nil
	case err != nil:
		m.alert = alertText(err)
		return nil
	}

	m.input.Reset()
	m.input.Blur()
	m.alert = ""
	m.status = "Sending to " + m.cfg.PrimaryModel + "..."
	return tea.Batch(m.sendCmd(parts), m.spinner.Tick, m.rerender())
}

func (m *Model) handleAttach(msg attachMsg) {
	m.status = ""
	if msg.err != nil {
		m.alert = alertText(msg.err)
		return
	}
	if err := m.session.Attach(msg.pending); err != nil {
		m.alert = alertText(err)
		return
	}
	m.alert = ""
	m.status = "Attached " + msg.pending.Name
}

func alertText(err error) string {
	switch {
	case errors.Is(err, attachment.ErrFileTooLarge):
		return "File too large. Maximum size is 10MB."
	case errors.Is(err, attachment.ErrUnsupportedType):
		return "Unsupported file type. Use images, PDFs or text files."
	case errors.Is(err, chat.ErrBusy):
		return "Wait for the current reply."
	default:
		return err.Error()
	}
}

func (m *Model) rerender() tea.Cmd {
	m.rendering = true
	m.renderNonce++
	return m.renderTranscriptCmd(m.renderNonce)
}

func (m Model) renderTranscriptCmd(nonce int) tea.Cmd {
	turns := m.session.Turns()
	style := m.cfg.GlamourStyle
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	return func() tea.Msg {
		return renderMsg{rendered: RenderTranscript(turns, style, wrap), nonce: nonce}
	}
}

func (m *Model) setViewportFromRendered(gotoBottom bool) {
	content := m.rendered
	query := strings.TrimSpace(m.searchQuery)
	if query != "" {
		hKey := strings.ToLower(query)
		res, ok := m.highlighted[hKey]
		if !ok {
			res = highlight.ApplyANSI(m.rendered, query, func(s string) string {
				return searchMatchStyle.Render(s)
			})
			m.highlighted[hKey] = res
		}
		content = res.Text
		m.setMatchMeta(res)
	} else {
		m.clearMatches()
	}

	oldOffset := m.viewport.YOffset
	m.viewport.SetContent(content)
	if gotoBottom {
		m.viewport.GotoBottom()
	} else {
		m.viewport.SetYOffset(m.clampViewportOffset(oldOffset))
	}
}

func (m *Model) setMatchMeta(res highlight.Result) {
	if res.Count == 0 || len(res.LineIndex) == 0 {
		m.clearMatches()
		return
	}
	m.matchCount = res.Count
	m.matchLines = append(m.matchLines[:0], res.LineIndex...)
	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	}
}

func (m *Model) clearMatches() {
	m.matchLines = nil
	m.matchCount = 0
	m.matchIndex = -1
}

// jumpToMatch moves by delta matches; delta 0 re-centers on the current one.
func (m *Model) jumpToMatch(delta int) {
	if strings.TrimSpace(m.searchQuery) == "" {
		return
	}
	if len(m.matchLines) == 0 {
		m.status = "No search matches in transcript"
		return
	}

	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	} else if delta > 0 {
		m.matchIndex = (m.matchIndex + 1) % len(m.matchLines)
	} else if delta < 0 {
		m.matchIndex = (m.matchIndex - 1 + len(m.matchLines)) % len(m.matchLines)
	}

	m.viewport.SetYOffset(m.clampViewportOffset(m.matchLines[m.matchIndex]))
	m.status = fmt.Sprintf("Match %d/%d", m.matchIndex+1, len(m.matchLines))
}

func (m *Model) clampViewportOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

// chromeHeight is everything around the transcript panel: status, panel
// border, loading line, attachment line, input and help.
const chromeHeight = 7

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	bodyHeight := m.height - chromeHeight
	if bodyHeight < 4 {
		bodyHeight = 4
	}
	m.viewport.Width = m.width - 4
	m.viewport.Height = bodyHeight
	m.input.Width = m.width - 4
	m.path.Width = m.width - 4
	m.search.Width = m.width - 4
	m.help.Width = m.width
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	body := panelStyle.Width(m.width - 2).Render(m.viewport.View())

	loading := ""
	if m.session.State() == chat.Sending {
		loading = m.spinner.View() + " Gemini is thinking..."
	}

	pending := ""
	if p, ok := m.session.Pending(); ok {
		pending = pendingStyle.Render(fmt.Sprintf("📎 %s (%s, %s)  ctrl+x to remove", p.Name, p.MimeType, formatSize(p.SizeBytes)))
	}

	var input string
	switch m.mode {
	case modeAttach:
		input = m.path.View()
	case modeSearch:
		input = m.search.View()
	default:
		input = m.input.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		body,
		loading,
		pending,
		input,
		m.help.View(m.keys),
	)
}

func (m Model) statusLine() string {
	status := fmt.Sprintf("model=%s  turns=%d  %s", m.cfg.PrimaryModel, len(m.session.Turns()), m.session.State())
	if m.searchQuery != "" {
		if m.matchCount > 0 {
			cur := m.matchIndex + 1
			if cur < 1 {
				cur = 1
			}
			status += fmt.Sprintf("  [match %d/%d]", cur, len(m.matchLines))
		} else {
			status += "  [match 0]"
		}
	}
	if m.rendering {
		status += "  [rendering]"
	}
	if s := strings.TrimSpace(m.status); s != "" {
		status += "  " + shorten(s, 80)
	}
	line := statusStyle.Render(status)
	if m.alert != "" {
		line += " " + alertStyle.Render("⚠ "+shorten(m.alert, 80))
	}
	return line
}

func shorten(s string, n int) string {
	return ansi.Truncate(strings.TrimSpace(s), n, "...")
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("54")).
			Padding(0, 1)
	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)
	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141"))
	searchMatchStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("220"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)
)
