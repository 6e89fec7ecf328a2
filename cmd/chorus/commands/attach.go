package commands

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/eachlabs/chorus/internal/orchestrator"
)

const maxAttachment = 20 << 20

// loadAttachment reads path into an image data URL or, for text files, its
// contents.
func loadAttachment(path string) (*orchestrator.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > maxAttachment {
		return nil, fmt.Errorf("%s: attachment larger than %d MB", path, maxAttachment>>20)
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	mimeType, _, _ = strings.Cut(mimeType, ";")

	att := &orchestrator.Attachment{Name: name, MIMEType: mimeType}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		att.DataURL = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	case utf8.Valid(data):
		att.Text = string(data)
	default:
		return nil, fmt.Errorf("%s: unsupported attachment type %s", name, mimeType)
	}
	return att, nil
}
