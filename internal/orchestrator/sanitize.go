package orchestrator

import (
	"strings"

	"github.com/eachlabs/chorus/internal/relay"
	"github.com/eachlabs/chorus/internal/thread"
)

// MessageSanitizer turns one backend's view of a thread into relay history.
type MessageSanitizer func(history []thread.Message, att *Attachment) []relay.Message

// DefaultSanitizer keeps user, assistant and system messages with content,
// drops placeholders, inlines the text of a non-image attachment into the
// last user message and flags it when an image is attached.
func DefaultSanitizer(history []thread.Message, att *Attachment) []relay.Message {
	out := make([]relay.Message, 0, len(history))
	for _, m := range history {
		if m.Pending || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case thread.RoleUser, thread.RoleAssistant, thread.RoleSystem:
		default:
			continue
		}
		out = append(out, relay.Message{
			Role:     string(m.Role),
			Content:  m.Content,
			HasImage: m.HasImage,
		})
	}

	if att == nil {
		return out
	}
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role != string(thread.RoleUser) {
			continue
		}
		if att.IsImage() {
			out[i].HasImage = true
		} else if att.Text != "" {
			out[i].Content += "\n\n" + attachmentBlock(att)
		}
		break
	}
	return out
}

func attachmentBlock(att *Attachment) string {
	name := att.Name
	if name == "" {
		name = "attachment"
	}
	return "--- " + name + " ---\n" + att.Text + "\n--- end of " + name + " ---"
}

// backendView is the part of history one backend should see: shared turns
// plus its own settled answers.
func backendView(history []thread.Message, backendID string) []thread.Message {
	out := make([]thread.Message, 0, len(history))
	for _, m := range history {
		if m.Role == thread.RoleAssistant {
			if m.BackendID != backendID || m.Pending || m.ErrorCode != 0 {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
