package orchestrator

import (
	"testing"

	"github.com/eachlabs/chorus/internal/thread"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantContent string
		wantTarget  string
		wantAll     bool
	}{
		{
			name:        "plain message",
			input:       "hello world",
			wantContent: "hello world",
		},
		{
			name:        "direct backend",
			input:       "@claude fix this bug",
			wantContent: "fix this bug",
			wantTarget:  "claude",
		},
		{
			name:        "model id",
			input:       "@openai/gpt-4o what is 2+2?",
			wantContent: "what is 2+2?",
			wantTarget:  "openai/gpt-4o",
		},
		{
			name:        "all backends",
			input:       "@all what do you think?",
			wantContent: "what do you think?",
			wantAll:     true,
		},
		{
			name:        "uppercase target",
			input:       "@GPT fix this",
			wantContent: "fix this",
			wantTarget:  "gpt",
		},
		{
			name:        "multi-line content",
			input:       "@all line one\nline two",
			wantContent: "line one\nline two",
			wantAll:     true,
		},
		{
			name:        "mention mid-sentence",
			input:       "ask @claude later",
			wantContent: "ask @claude later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseMessage(tt.input)

			if parsed.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", parsed.Content, tt.wantContent)
			}
			if parsed.Target != tt.wantTarget {
				t.Errorf("Target = %q, want %q", parsed.Target, tt.wantTarget)
			}
			if parsed.TargetAll != tt.wantAll {
				t.Errorf("TargetAll = %v, want %v", parsed.TargetAll, tt.wantAll)
			}
		})
	}
}

func TestTargets(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStreamer{}, &fakeCaller{}, func(cfg *Config) {
		cfg.Selected = []string{"gpt-4o"}
	})

	tests := []struct {
		input string
		want  []string
	}{
		{"hello", []string{"openai/gpt-4o"}},
		{"@all hello", []string{"openai/gpt-4o", "anthropic/claude", "meta/llama"}},
		{"@claude hello", []string{"anthropic/claude"}},
		{"@llama hello", []string{"meta/llama"}},
	}
	for _, tt := range tests {
		backends, err := o.Targets(ParseMessage(tt.input))
		if err != nil {
			t.Fatalf("Targets(%q) error = %v", tt.input, err)
		}
		if len(backends) != len(tt.want) {
			t.Fatalf("Targets(%q) = %d backends, want %d", tt.input, len(backends), len(tt.want))
		}
		for i, b := range backends {
			if b.ID != tt.want[i] {
				t.Errorf("Targets(%q)[%d] = %q, want %q", tt.input, i, b.ID, tt.want[i])
			}
		}
	}

	if _, err := o.Targets(ParseMessage("@nobody hi")); err == nil {
		t.Error("Targets() accepted an unknown backend")
	}
}

func TestSelect(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStreamer{}, &fakeCaller{})

	if got := len(o.Selected()); got != 3 {
		t.Errorf("default selection = %d, want all 3", got)
	}
	if err := o.Select("Claude", "anthropic/claude", "llama"); err != nil {
		t.Fatal(err)
	}
	sel := o.Selected()
	if len(sel) != 2 || sel[0].ID != "anthropic/claude" || sel[1].ID != "meta/llama" {
		t.Errorf("Selected() = %+v", sel)
	}
	if err := o.Select("unknown"); err == nil {
		t.Error("Select() accepted an unknown backend")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without a store should fail")
	}
	cfg := Config{
		Store:    thread.NewStore(),
		Streamer: &fakeStreamer{},
		Backends: []Backend{{ID: "a"}, {ID: "a"}},
	}
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted duplicate backends")
	}
}
