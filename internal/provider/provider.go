// Package provider defines the single-shot LLM call path and its backends.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Provider is any LLM backend that can answer a chat request in one call.
type Provider interface {
	// Chat sends a request and returns the complete response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider name (e.g., "openrouter", "anthropic").
	Name() string
}

// Credential kinds reported back to callers.
const (
	KeyUser   = "user"
	KeyShared = "shared"
)

// Message is one role-validated plain-text history entry.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest represents a single-shot chat completion request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	ImageDataURL string // attached to the last user message
	MaxTokens    int

	// Credential is the caller's own key. When empty the provider's
	// configured key is used.
	Credential string
	Referer    string
	Title      string
}

// ChatResponse is the normalized result of a single-shot call.
type ChatResponse struct {
	Text        string          `json:"text"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	Provider    string          `json:"provider"`
	UsedKeyType string          `json:"usedKeyType"`
	Tokens      *Usage          `json:"tokens,omitempty"`
}

// Usage tracks token usage.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ErrNoCredential is returned when neither the request nor the provider
// carries an API key.
var ErrNoCredential = errors.New("api key required")

// APIError is a failed upstream call with its HTTP status.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// resolveKey picks the request credential over the configured one.
func resolveKey(req *ChatRequest, configured string) (key, kind string, err error) {
	if req.Credential != "" {
		return req.Credential, KeyUser, nil
	}
	if configured != "" {
		return configured, KeyShared, nil
	}
	return "", "", ErrNoCredential
}

func lastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return i
		}
	}
	return -1
}
