package relay

import (
	"strings"
	"testing"
)

func TestSanitizers(t *testing.T) {
	s := DefaultSanitizers()

	tests := []struct {
		model string
		in    string
		want  string
	}{
		{"z-ai/glm-4.5v", "<|begin_of_box|>42<|end_of_box|>", "42"},
		{"Z-AI/GLM-4.5", "<b>bold</b>", "**bold**"},
		{"moonshotai/kimi-k2", "<answer>yes</answer>", "yes"},
		{"openai/gpt-4o", "<em>x</em> and <strong>y</strong>", "_x_ and **y**"},
		{"openai/gpt-4o", "<|begin_of_box|>", "<|begin_of_box|>"},
	}
	for _, tt := range tests {
		if got := s.For(tt.model)(tt.in); got != tt.want {
			t.Errorf("For(%q)(%q) = %q, want %q", tt.model, tt.in, got, tt.want)
		}
	}
}

func TestSanitizersLongestPrefix(t *testing.T) {
	s := NewSanitizers(nil)
	s.Register("a/", strings.ToUpper)
	s.Register("a/b", strings.ToLower)

	if got := s.For("a/bc")("MiX"); got != "mix" {
		t.Errorf("longest prefix = %q, want %q", got, "mix")
	}
	if got := s.For("a/x")("MiX"); got != "MIX" {
		t.Errorf("short prefix = %q, want %q", got, "MIX")
	}
	if got := s.For("other")("MiX"); got != "MiX" {
		t.Errorf("fallback = %q, want %q", got, "MiX")
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		code    int
		message string
		keyKind string
		want    string
		notWant string
	}{
		{429, "", "shared", "own OpenRouter API key", ""},
		{429, "", "user", "rate limited on your API key", "Add your own"},
		{402, "", "shared", "free variant", ""},
		{402, "", "user", "no credits left", "Add an OpenRouter"},
		{408, "", "user", "did not answer in time", ""},
		{500, "upstream exploded", "shared", "upstream exploded", ""},
		{503, "", "", "HTTP 503", ""},
	}
	for _, tt := range tests {
		got := DescribeError(tt.code, tt.message, "m", tt.keyKind)
		if !strings.Contains(got, tt.want) {
			t.Errorf("DescribeError(%d, %s) = %q, want it to contain %q", tt.code, tt.keyKind, got, tt.want)
		}
		if tt.notWant != "" && strings.Contains(got, tt.notWant) {
			t.Errorf("DescribeError(%d, %s) = %q, should not contain %q", tt.code, tt.keyKind, got, tt.notWant)
		}
	}
}

func TestEventPayload(t *testing.T) {
	events := []Event{
		{Kind: KindMeta, Provider: "openrouter", UsedKeyType: "shared"},
		{Kind: KindDelta, Text: "hi\n"},
		{Kind: KindError, Message: "nope", Code: 429, Provider: "p", UsedKeyType: "user"},
		{Kind: KindDone},
	}
	for _, want := range events {
		raw, err := want.Payload()
		if err != nil {
			t.Fatalf("Payload(%v) error = %v", want.Kind, err)
		}
		got, err := ParseEvent(string(raw))
		if err != nil {
			t.Fatalf("ParseEvent(%s) error = %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseEvent(%s) = %+v, want %+v", raw, got, want)
		}
	}

	if _, err := ParseEvent(`{"unknown":1}`); err == nil {
		t.Error("ParseEvent() accepted an unknown payload")
	}
}
