package ui

import (
	"strings"

	"geminichat/internal/chat"
	"geminichat/internal/export"

	"github.com/charmbracelet/glamour"
)

// RenderTranscript renders turns as terminal markdown. When glamour cannot
// build a renderer the raw markdown is returned.
func RenderTranscript(turns []chat.Turn, style string, wrap int) string {
	md := export.BuildTranscriptMarkdown(turns)
	if strings.TrimSpace(md) == "" {
		md = "_No messages yet._\n"
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
