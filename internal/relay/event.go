package relay

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/eachlabs/chorus/internal/sse"
)

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindMeta  Kind = "meta"
	KindDelta Kind = "delta"
	KindError Kind = "error"
	KindDone  Kind = "done"
)

// Event is one normalized item of a relayed stream.
type Event struct {
	Kind Kind

	// Text is the fragment of a delta.
	Text string

	// Message and Code describe an error.
	Message string
	Code    int

	// Provider and UsedKeyType are set on meta and error events.
	Provider    string
	UsedKeyType string
}

type metaPayload struct {
	Provider    string `json:"provider"`
	UsedKeyType string `json:"usedKeyType"`
}

type deltaPayload struct {
	Delta string `json:"delta"`
}

type errorPayload struct {
	Error       string `json:"error"`
	Code        int    `json:"code"`
	Provider    string `json:"provider,omitempty"`
	UsedKeyType string `json:"usedKeyType,omitempty"`
}

// Payload returns the data line of e as written on the wire.
func (e Event) Payload() ([]byte, error) {
	switch e.Kind {
	case KindMeta:
		return json.Marshal(metaPayload{Provider: e.Provider, UsedKeyType: e.UsedKeyType})
	case KindDelta:
		return json.Marshal(deltaPayload{Delta: e.Text})
	case KindError:
		return json.Marshal(errorPayload{
			Error:       e.Message,
			Code:        e.Code,
			Provider:    e.Provider,
			UsedKeyType: e.UsedKeyType,
		})
	case KindDone:
		return []byte(sse.Done), nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// ParseEvent decodes one data payload produced by Payload.
func ParseEvent(payload string) (Event, error) {
	if payload == sse.Done {
		return Event{Kind: KindDone}, nil
	}
	if !gjson.Valid(payload) {
		return Event{}, fmt.Errorf("invalid event payload %q", truncate(payload, 64))
	}

	res := gjson.Parse(payload)
	switch {
	case res.Get("error").Exists():
		return Event{
			Kind:        KindError,
			Message:     res.Get("error").String(),
			Code:        int(res.Get("code").Int()),
			Provider:    res.Get("provider").String(),
			UsedKeyType: res.Get("usedKeyType").String(),
		}, nil
	case res.Get("delta").Exists():
		return Event{Kind: KindDelta, Text: res.Get("delta").String()}, nil
	case res.Get("provider").Exists():
		return Event{
			Kind:        KindMeta,
			Provider:    res.Get("provider").String(),
			UsedKeyType: res.Get("usedKeyType").String(),
		}, nil
	}
	return Event{}, fmt.Errorf("unrecognized event payload %q", truncate(payload, 64))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
