package ui

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"geminichat/internal/attachment"
	"geminichat/internal/chat"
	"geminichat/internal/clipboard"
	"geminichat/internal/config"
	"geminichat/internal/request"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeSender struct {
	mu    sync.Mutex
	reply string
	calls [][]request.Part
}

func (f *fakeSender) Send(_ context.Context, parts []request.Part) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, parts)
	return f.reply
}

type fakeExporter struct {
	turns []chat.Turn
}

func (f *fakeExporter) Export(turns []chat.Turn) (string, error) {
	f.turns = turns
	return "/tmp/out.md", nil
}

func newTestModel(sender *fakeSender) Model {
	return New(Deps{
		Config:   config.AppConfig{PrimaryModel: "gemini-2.5-flash"},
		Session:  chat.NewSession(config.Greeting),
		Sender:   sender,
		Exporter: &fakeExporter{},
		Copy:     func(context.Context, string) error { return nil },
		Load: func(path string) (attachment.Pending, error) {
			return attachment.Pending{Name: path, MimeType: "text/plain", SizeBytes: 2, Bytes: []byte("hi")}, nil
		},
	})
}

// collect runs cmd and any batched commands, returning the produced messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return nm, cmd
}

func findReply(msgs []tea.Msg) (replyMsg, bool) {
	for _, msg := range msgs {
		if r, ok := msg.(replyMsg); ok {
			return r, true
		}
	}
	return replyMsg{}, false
}

func TestSubmitSendsAndResolves(t *testing.T) {
	sender := &fakeSender{reply: "hello back"}
	m := newTestModel(sender)
	m.input.SetValue("  hello  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.session.State() != chat.Sending {
		t.Fatalf("expected sending state, got %s", m.session.State())
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input cleared, got %q", m.input.Value())
	}
	if m.input.Focused() {
		t.Fatalf("expected input disabled while sending")
	}

	reply, ok := findReply(collect(cmd))
	if !ok {
		t.Fatalf("expected a reply message from submit")
	}
	if !reflect.DeepEqual(sender.calls, [][]request.Part{{request.TextPart{Text: "hello"}}}) {
		t.Fatalf("unexpected sent parts: %#v", sender.calls)
	}

	m, _ = update(t, m, reply)
	if m.session.State() != chat.Idle {
		t.Fatalf("expected idle after reply, got %s", m.session.State())
	}
	turns := m.session.Turns()
	if len(turns) != 3 || turns[1].Text != "hello" || turns[2].Text != "hello back" {
		t.Fatalf("unexpected transcript: %#v", turns)
	}
	if !m.input.Focused() {
		t.Fatalf("expected input re-enabled after reply")
	}
}

func TestSubmitIgnoredWhileSending(t *testing.T) {
	sender := &fakeSender{reply: "r"}
	m := newTestModel(sender)
	m.input.SetValue("first")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("second")})
	if m.input.Value() != "" {
		t.Fatalf("expected typing ignored while sending, got %q", m.input.Value())
	}
	m.input.SetValue("second")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no command while sending")
	}
	if n := len(m.session.Turns()); n != 2 {
		t.Fatalf("expected greeting + one user turn, got %d", n)
	}
}

func TestEmptySubmitIsNoop(t *testing.T) {
	m := newTestModel(&fakeSender{})
	m.input.SetValue("   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no command for empty submit")
	}
	if m.session.State() != chat.Idle || len(m.session.Turns()) != 1 {
		t.Fatalf("expected untouched session")
	}
}

func TestAttachFlow(t *testing.T) {
	sender := &fakeSender{reply: "summary"}
	m := newTestModel(sender)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if m.mode != modeAttach {
		t.Fatalf("expected attach mode")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("notes.txt")})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != modeChat {
		t.Fatalf("expected chat mode after choosing a file")
	}

	var attached bool
	for _, msg := range collect(cmd) {
		if am, ok := msg.(attachMsg); ok {
			m, _ = update(t, m, am)
			attached = true
		}
	}
	if !attached {
		t.Fatalf("expected attach message")
	}
	p, ok := m.session.Pending()
	if !ok || p.Name != "notes.txt" {
		t.Fatalf("expected pending attachment, got %#v %v", p, ok)
	}
	if !strings.Contains(m.View(), "notes.txt") {
		t.Fatalf("expected pending attachment shown in view")
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := findReply(collect(cmd)); !ok {
		t.Fatalf("expected attachment-only submit to send")
	}
	want := []request.Part{request.TextPart{Text: "File: notes.txt\n\nhi\n\nPlease analyze this file."}}
	if !reflect.DeepEqual(sender.calls[0], want) {
		t.Fatalf("unexpected parts: %#v", sender.calls[0])
	}
	if _, ok := m.session.Pending(); ok {
		t.Fatalf("expected pending slot cleared after submit")
	}
}

func TestAttachErrorsShowAlertAndKeepSlotEmpty(t *testing.T) {
	m := newTestModel(&fakeSender{})

	m, _ = update(t, m, attachMsg{err: fmt.Errorf("big.png: %w", attachment.ErrFileTooLarge)})
	if !strings.Contains(m.alert, "too large") {
		t.Fatalf("expected size alert, got %q", m.alert)
	}
	if _, ok := m.session.Pending(); ok {
		t.Fatalf("expected empty slot")
	}

	m, _ = update(t, m, attachMsg{pending: attachment.Pending{Name: "a.zip", MimeType: "application/zip", SizeBytes: 1}})
	if !strings.Contains(m.alert, "Unsupported") {
		t.Fatalf("expected type alert, got %q", m.alert)
	}
	if _, ok := m.session.Pending(); ok {
		t.Fatalf("expected empty slot")
	}
}

func TestDetachRemovesPending(t *testing.T) {
	m := newTestModel(&fakeSender{})
	m, _ = update(t, m, attachMsg{pending: attachment.Pending{Name: "a.png", MimeType: "image/png", SizeBytes: 1, Bytes: []byte{1}}})
	if _, ok := m.session.Pending(); !ok {
		t.Fatalf("expected pending attachment")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	if _, ok := m.session.Pending(); ok {
		t.Fatalf("expected attachment removed")
	}
}

func TestCopyLastReply(t *testing.T) {
	var copied string
	m := newTestModel(&fakeSender{reply: "the answer"})
	m.copy = func(_ context.Context, text string) error {
		copied = text
		return nil
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if cmd != nil || copied != "" {
		t.Fatalf("expected nothing copied before the first reply")
	}
	if m.status != "Nothing to copy yet" {
		t.Fatalf("unexpected status: %q", m.status)
	}

	m.input.SetValue("question")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	reply, ok := findReply(collect(cmd))
	if !ok {
		t.Fatalf("expected a reply message")
	}
	m, _ = update(t, m, reply)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	msgs := collect(cmd)
	if len(msgs) != 1 {
		t.Fatalf("expected one copy message, got %d", len(msgs))
	}
	if copied != "the answer" {
		t.Fatalf("expected last reply copied, got %q", copied)
	}
	m, _ = update(t, m, msgs[0])
	if m.status != "Copied last reply to clipboard" {
		t.Fatalf("unexpected status: %q", m.status)
	}

	m, _ = update(t, m, copyMsg{err: clipboard.ErrToolNotFound})
	if !strings.Contains(m.alert, "clipboard tool not found") {
		t.Fatalf("unexpected alert: %q", m.alert)
	}
}

func TestExportUsesTranscript(t *testing.T) {
	exp := &fakeExporter{}
	m := newTestModel(&fakeSender{})
	m.exporter = exp

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	msgs := collect(cmd)
	if len(msgs) != 1 {
		t.Fatalf("expected export message")
	}
	if len(exp.turns) != 1 || exp.turns[0].Text != config.Greeting {
		t.Fatalf("unexpected exported turns: %#v", exp.turns)
	}
	m, _ = update(t, m, msgs[0])
	if m.status != "Exported: /tmp/out.md" {
		t.Fatalf("unexpected status: %q", m.status)
	}

	m, _ = update(t, m, exportMsg{err: errors.New("disk full")})
	if !strings.Contains(m.alert, "disk full") {
		t.Fatalf("unexpected alert: %q", m.alert)
	}
}

func TestSearchHighlightsRenderedTranscript(t *testing.T) {
	m := newTestModel(&fakeSender{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	m, _ = update(t, m, renderMsg{rendered: "alpha\nbeta\nalpha again\n", nonce: m.renderNonce})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlF})
	if m.mode != modeSearch {
		t.Fatalf("expected search mode")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("alpha")})
	if m.searchQuery != "alpha" || m.matchCount != 2 {
		t.Fatalf("expected 2 matches for alpha, got query=%q count=%d", m.searchQuery, m.matchCount)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != modeChat || m.searchQuery != "alpha" {
		t.Fatalf("expected query kept after enter")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.matchIndex != 1 {
		t.Fatalf("expected second match selected, got %d", m.matchIndex)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.searchQuery != "" || m.matchCount != 0 {
		t.Fatalf("expected search cleared")
	}
}

func TestStaleRenderIgnored(t *testing.T) {
	m := newTestModel(&fakeSender{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	m, _ = update(t, m, renderMsg{rendered: "stale", nonce: m.renderNonce - 1})
	if m.rendered == "stale" {
		t.Fatalf("expected stale render to be dropped")
	}
}

func TestRenderTranscriptFallsBackToMarkdown(t *testing.T) {
	out := RenderTranscript([]chat.Turn{{Role: chat.RoleUser, Text: "hi"}}, "no-such-style", 40)
	if !strings.Contains(out, "## You") {
		t.Fatalf("expected raw markdown fallback, got %q", out)
	}
}

func TestLongPromptIsNotTruncated(t *testing.T) {
	sender := &fakeSender{reply: "ok"}
	m := newTestModel(sender)
	long := strings.Repeat("a", 12000)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(long), Paste: true})
	if got := len(m.input.Value()); got != len(long) {
		t.Fatalf("expected %d chars in the input, got %d", len(long), got)
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := findReply(collect(cmd)); !ok {
		t.Fatalf("expected a reply message")
	}
	if !reflect.DeepEqual(sender.calls, [][]request.Part{{request.TextPart{Text: long}}}) {
		t.Fatalf("expected the full prompt to be sent")
	}
}
