package attachment

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"geminichat/internal/config"
)

// extensionTypes pins the types the allow-list cares about so results do not
// depend on the host's mime.types tables.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".mjs":  "text/javascript",
	".json": "application/json",
}

// Load reads path into a Pending attachment. Files over the size limit are
// rejected from their stat size without being read.
func Load(path string) (Pending, error) {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return Pending{}, errors.New("empty attachment path")
	}

	st, err := os.Stat(path)
	if err != nil {
		return Pending{}, fmt.Errorf("stat attachment: %w", err)
	}
	if st.IsDir() {
		return Pending{}, fmt.Errorf("%s is a directory", path)
	}

	p := Pending{
		Name:      filepath.Base(path),
		SizeBytes: st.Size(),
	}
	if p.SizeBytes > config.MaxAttachmentBytes {
		return Pending{}, fmt.Errorf("%s: %w", p.Name, ErrFileTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return Pending{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, config.MaxAttachmentBytes+1))
	if err != nil {
		return Pending{}, fmt.Errorf("read attachment: %w", err)
	}
	p.Bytes = data
	p.SizeBytes = int64(len(data))
	p.MimeType = DetectType(p.Name, data)

	if err := Validate(p); err != nil {
		return Pending{}, err
	}
	return p, nil
}

// DetectType resolves a MIME type from the file extension, falling back to
// content sniffing. Parameters such as charset are dropped.
func DetectType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return baseType(t)
	}
	return baseType(http.DetectContentType(data))
}

func baseType(t string) string {
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(t))
	}
	return mediaType
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
