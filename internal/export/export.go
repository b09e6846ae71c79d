package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geminichat/internal/chat"
)

type Exporter struct {
	dir   string
	model string
	now   func() time.Time
}

func New(dir, model string) *Exporter {
	return &Exporter{dir: strings.TrimSpace(dir), model: strings.TrimSpace(model), now: time.Now}
}

// maxSameSecond bounds the suffixed names tried when exports share a timestamp.
const maxSameSecond = 100

// Export writes the transcript as markdown and returns the file path. Existing
// files are never overwritten.
func (e *Exporter) Export(turns []chat.Turn) (string, error) {
	now := e.now().UTC()
	base := e.outputPath(now)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	md := BuildSessionMarkdown(e.model, BuildTranscriptMarkdown(turns), len(turns), now)
	f, path, err := createUnique(base)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if _, err := f.WriteString(md); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}

// createUnique opens base, or base with a -N suffix when it already exists.
func createUnique(base string) (*os.File, string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i <= maxSameSecond; i++ {
		path := base
		if i > 1 {
			path = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("%s: %w", base, fs.ErrExist)
}

func BuildTranscriptMarkdown(turns []chat.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		content := strings.TrimSpace(t.Text)
		if content == "" && t.Attachment == nil {
			continue
		}

		switch t.Role {
		case chat.RoleUser:
			b.WriteString("## You\n\n")
		default:
			b.WriteString("## Gemini\n\n")
		}
		if t.Attachment != nil {
			b.WriteString(AttachmentLine(*t.Attachment) + "\n\n")
		}
		if content != "" {
			b.WriteString(content + "\n\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func AttachmentLine(ref chat.AttachmentRef) string {
	return fmt.Sprintf("> 📎 `%s` (%s)", safeValue(ref.Name), safeValue(ref.MimeType))
}

func BuildSessionMarkdown(model, transcript string, turnCount int, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Gemini chat\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("model: " + safeValue(model) + "\n")
	b.WriteString(fmt.Sprintf("turn_count: %d\n", turnCount))
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) outputPath(now time.Time) string {
	dir := e.dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "geminichat-"+now.Format("20060102-150405")+".md")
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
