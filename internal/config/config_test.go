package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("CHORUS_MODELS", "")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Relay.Timeout.Duration != 120*time.Second {
		t.Errorf("Relay.Timeout = %v, want 120s", cfg.Relay.Timeout)
	}
	if cfg.Orchestrator.FlushInterval.Duration != 24*time.Millisecond {
		t.Errorf("FlushInterval = %v, want 24ms", cfg.Orchestrator.FlushInterval)
	}
	if cfg.Orchestrator.FlushBytes != 512 {
		t.Errorf("FlushBytes = %d, want 512", cfg.Orchestrator.FlushBytes)
	}
	if got := len(cfg.Catalog()); got != len(DefaultBackends) {
		t.Errorf("Catalog() = %d entries, want defaults", got)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("CHORUS_MODELS", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[defaults]
models = ["openai/gpt-4o"]
system_prompt = "be brief"

[relay]
port = 9000
timeout = "30s"

[orchestrator]
flush_interval = "50ms"
flush_bytes = 1024

[provider.openrouter]
api_key = "sk-or-test-1234"

[[backend]]
id = "openai/gpt-4o"
label = "GPT-4o"
streaming = true

[[backend]]
id = "meta/llama"
label = "Llama"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Relay.Port != 9000 || cfg.Relay.Host != "127.0.0.1" {
		t.Errorf("Relay addr = %s, want 127.0.0.1:9000", cfg.Relay.Addr())
	}
	if cfg.Relay.Timeout.Duration != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Relay.Timeout)
	}
	if cfg.Orchestrator.FlushInterval.Duration != 50*time.Millisecond {
		t.Errorf("FlushInterval = %v, want 50ms", cfg.Orchestrator.FlushInterval)
	}
	if cfg.SharedKey() != "sk-or-test-1234" {
		t.Errorf("SharedKey() = %q", cfg.SharedKey())
	}
	backends := cfg.Catalog()
	if len(backends) != 2 || backends[1].Streaming {
		t.Errorf("Catalog() = %+v", backends)
	}
}

func TestLoadFileEnvOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	t.Setenv("CHORUS_MODELS", "a/b, c/d ,")
	t.Setenv("CHORUS_RELAY_URL", "http://relay:8787")
	t.Setenv("CHORUS_LOG_LEVEL", "debug")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SharedKey() != "env-key" {
		t.Errorf("SharedKey() = %q, want env-key", cfg.SharedKey())
	}
	if cfg.Provider["anthropic"].APIKey != "ant-key" {
		t.Errorf("anthropic key = %q", cfg.Provider["anthropic"].APIKey)
	}
	if len(cfg.Defaults.Models) != 2 || cfg.Defaults.Models[1] != "c/d" {
		t.Errorf("Models = %q", cfg.Defaults.Models)
	}
	if cfg.Orchestrator.RelayURL != "http://relay:8787" {
		t.Errorf("RelayURL = %q", cfg.Orchestrator.RelayURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad duration", "[relay]\ntimeout = \"soon\"\n"},
		{"zero flush bytes", "[orchestrator]\nflush_bytes = -1\n"},
		{"duplicate backend", "[[backend]]\nid = \"a\"\n[[backend]]\nid = \"a\"\n"},
		{"syntax", "[relay\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFile(path); err == nil {
				t.Error("LoadFile() should fail")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("CHORUS_MODELS", "")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := defaultConfig()
	if err := cfg.Set("relay.timeout", "45s"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("provider.openrouter.api_key", "sk-or-abcdefgh"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Relay.Timeout.Duration != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", loaded.Relay.Timeout)
	}
	if loaded.SharedKey() != "sk-or-abcdefgh" {
		t.Errorf("SharedKey() = %q", loaded.SharedKey())
	}
}

func TestGetSet(t *testing.T) {
	cfg := defaultConfig()

	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"relay.port", "9090", 9090},
		{"relay.host", "0.0.0.0", "0.0.0.0"},
		{"orchestrator.flush_interval", "10ms", "10ms"},
		{"orchestrator.flush_bytes", "256", 256},
		{"defaults.system_prompt", "hi", "hi"},
		{"provider.anthropic.api_key", "sk-ant-secret-key", "sk-a...-key"},
		{"logging.format", "json", "json"},
	}
	for _, tt := range tests {
		if err := cfg.Set(tt.key, tt.value); err != nil {
			t.Fatalf("Set(%q) error = %v", tt.key, err)
		}
		got, ok := cfg.Get(tt.key)
		if !ok {
			t.Fatalf("Get(%q) not found", tt.key)
		}
		if got != tt.want {
			t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}

	for _, bad := range [][2]string{
		{"relay.port", "abc"},
		{"relay.timeout", "-1s"},
		{"nope.key", "x"},
		{"provider.x", "y"},
		{"orchestrator.flush_bytes", "0"},
	} {
		if err := cfg.Set(bad[0], bad[1]); err == nil {
			t.Errorf("Set(%q, %q) should fail", bad[0], bad[1])
		}
	}
	if _, ok := cfg.Get("provider.missing.api_key"); ok {
		t.Error("Get() found a missing provider")
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "****"},
		{"sk-or-v1-abcdef", "sk-o...cdef"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.in); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
