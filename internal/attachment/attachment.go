package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"geminichat/internal/config"
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

type Kind int

const (
	KindText Kind = iota
	KindImage
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "text"
	}
}

// Pending is a selected file waiting to be sent.
type Pending struct {
	Name      string
	MimeType  string
	SizeBytes int64
	Bytes     []byte
}

// Encoded is a validated attachment ready for the request builder. Base64 is
// set for images and PDFs, Text for text-like files.
type Encoded struct {
	Name     string
	MimeType string
	Kind     Kind
	Base64   string
	Text     string
}

var allowedTypes = map[string]struct{}{
	"image/jpeg":       {},
	"image/png":        {},
	"image/gif":        {},
	"image/webp":       {},
	"application/pdf":  {},
	"text/plain":       {},
	"text/csv":         {},
	"text/html":        {},
	"text/css":         {},
	"text/javascript":  {},
	"application/json": {},
}

func IsAllowedType(mimeType string) bool {
	_, ok := allowedTypes[mimeType]
	return ok
}

func Validate(p Pending) error {
	if p.SizeBytes > config.MaxAttachmentBytes {
		return fmt.Errorf("%s: %w", p.Name, ErrFileTooLarge)
	}
	if !IsAllowedType(p.MimeType) {
		return fmt.Errorf("%s (%s): %w", p.Name, p.MimeType, ErrUnsupportedType)
	}
	return nil
}

func Classify(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case mimeType == "application/pdf":
		return KindPDF
	default:
		return KindText
	}
}

func Encode(p Pending) (Encoded, error) {
	if err := Validate(p); err != nil {
		return Encoded{}, err
	}

	out := Encoded{
		Name:     p.Name,
		MimeType: p.MimeType,
		Kind:     Classify(p.MimeType),
	}
	switch out.Kind {
	case KindImage, KindPDF:
		out.Base64 = base64.StdEncoding.EncodeToString(p.Bytes)
	default:
		out.Text = strings.ToValidUTF8(string(p.Bytes), "�")
	}
	return out, nil
}
