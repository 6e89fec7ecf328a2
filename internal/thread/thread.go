// Package thread holds the in-memory conversation state shared by every
// backend task of the orchestrator.
package thread

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CredentialKind records whose key paid for an answer.
type CredentialKind string

const (
	CredentialNone   CredentialKind = ""
	CredentialUser   CredentialKind = "user"
	CredentialShared CredentialKind = "shared"
)

// ErrNotFound is returned for unknown threads, turns and messages.
var ErrNotFound = errors.New("not found")

// titleLimit bounds derived thread titles, in runes.
const titleLimit = 48

// Message is one entry of a thread.
type Message struct {
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	BackendID      string         `json:"backendId,omitempty"`
	Timestamp      int64          `json:"timestamp"`
	ProviderName   string         `json:"providerName,omitempty"`
	ErrorCode      int            `json:"errorCode,omitempty"`
	CredentialKind CredentialKind `json:"usedKeyType,omitempty"`

	// HasImage marks a user turn that carried an image attachment.
	HasImage bool `json:"hasImage,omitempty"`

	// Pending is set while the message is still a placeholder.
	Pending bool `json:"pending,omitempty"`
	// Incomplete marks an answer cut short by an error after partial output.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Key identifies a message for in-place replacement.
type Key struct {
	Timestamp int64
	BackendID string
}

// Key returns the identity of m.
func (m Message) Key() Key {
	return Key{Timestamp: m.Timestamp, BackendID: m.BackendID}
}

// Thread is one conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserTurns returns the indexes of the user messages of t, in order.
func (t *Thread) UserTurns() []int {
	var idx []int
	for i, m := range t.Messages {
		if m.Role == RoleUser {
			idx = append(idx, i)
		}
	}
	return idx
}

func (t *Thread) clone() Thread {
	c := *t
	c.Messages = append([]Message(nil), t.Messages...)
	return c
}

func (t *Thread) indexOf(key Key) int {
	for i := range t.Messages {
		if t.Messages[i].Key() == key {
			return i
		}
	}
	return -1
}

// DeriveTitle builds a short single-line title from a prompt.
func DeriveTitle(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if utf8.RuneCountInString(title) <= titleLimit {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleLimit])) + "..."
}
