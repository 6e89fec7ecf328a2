package relay

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/eachlabs/chorus/internal/provider"
)

// ImageOmitted replaces images on user turns other than the last one.
const ImageOmitted = "[image attachment omitted]"

// Message is one sanitized history entry sent to the relay.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	HasImage bool   `json:"hasImage,omitempty"`
}

// Request is the body of a relay call.
type Request struct {
	Messages     []Message `json:"messages"`
	Model        string    `json:"model"`
	Credential   string    `json:"credential,omitempty"`
	Referer      string    `json:"referer,omitempty"`
	Title        string    `json:"title,omitempty"`
	ImageDataURL string    `json:"imageDataUrl,omitempty"`
}

// ValidationError rejects a request before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// Code is the HTTP status reported for validation failures.
func (e *ValidationError) Code() int {
	return http.StatusBadRequest
}

// credential resolves the key for req and whose key it is.
func credential(req Request, shared string) (key, kind string, err error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", "", &ValidationError{Field: "model", Message: "model is required"}
	}
	if req.Credential != "" {
		return req.Credential, provider.KeyUser, nil
	}
	if shared != "" {
		return shared, provider.KeyShared, nil
	}
	return "", "", &ValidationError{Field: "credential", Message: "no API key supplied and no shared key configured"}
}

// lastUser returns the index of the final user message, or -1.
func lastUser(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return i
		}
	}
	return -1
}

// ProviderMessages converts req into plain-text provider history. The image
// travels separately so only earlier image turns get the omission note.
func ProviderMessages(req Request) []provider.Message {
	last := -1
	if req.ImageDataURL != "" {
		last = lastUser(req.Messages)
	}
	out := make([]provider.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		content := m.Content
		if m.HasImage && i != last {
			content = withOmittedImage(content)
		}
		out = append(out, provider.Message{Role: m.Role, Content: content})
	}
	return out
}

func withOmittedImage(content string) string {
	if content == "" {
		return ImageOmitted
	}
	return content + "\n\n" + ImageOmitted
}
