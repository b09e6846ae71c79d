package request

import (
	"strings"

	"geminichat/internal/attachment"
)

const (
	DefaultImagePrompt = "What's in this image?"
	DefaultPDFPrompt   = "Please analyze this PDF document."
	DefaultFilePrompt  = "Please analyze this file."
	UploadDisplayText  = "📎 Uploaded a file"
)

// Part is one fragment of a request turn: either TextPart or InlineDataPart.
type Part interface {
	isPart()
}

type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

type InlineDataPart struct {
	MimeType string
	Base64   string
}

func (InlineDataPart) isPart() {}

// Build assembles the parts for one user turn. userText is expected trimmed;
// callers guarantee that userText or att is present.
func Build(userText string, att *attachment.Encoded) []Part {
	parts := make([]Part, 0, 2)
	if userText != "" {
		parts = append(parts, TextPart{Text: userText})
	}
	if att == nil {
		return parts
	}

	switch att.Kind {
	case attachment.KindImage, attachment.KindPDF:
		if userText == "" {
			prompt := DefaultImagePrompt
			if att.Kind == attachment.KindPDF {
				prompt = DefaultPDFPrompt
			}
			parts = append(parts, TextPart{Text: prompt})
		}
		parts = append(parts, InlineDataPart{MimeType: att.MimeType, Base64: att.Base64})
	default:
		// Text-like files absorb the user text into a single part.
		parts = []Part{TextPart{Text: FileText(att.Name, att.Text, userText)}}
	}
	return parts
}

// FileText renders a text-like attachment and the accompanying question.
func FileText(name, content, userText string) string {
	question := userText
	if question == "" {
		question = DefaultFilePrompt
	}
	var b strings.Builder
	b.WriteString("File: " + name + "\n\n")
	b.WriteString(content)
	b.WriteString("\n\n")
	b.WriteString(question)
	return b.String()
}

func DisplayText(userText string) string {
	if userText != "" {
		return userText
	}
	return UploadDisplayText
}
