// Package config handles configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the chorus configuration.
type Config struct {
	Defaults     DefaultsConfig            `toml:"defaults"`
	Relay        RelayConfig               `toml:"relay"`
	Orchestrator OrchestratorConfig        `toml:"orchestrator"`
	Provider     map[string]ProviderConfig `toml:"provider"`
	Backends     []BackendConfig           `toml:"backend"`
	Logging      LoggingConfig             `toml:"logging"`
}

// DefaultsConfig holds default settings.
type DefaultsConfig struct {
	Models       []string `toml:"models"` // selected backend ids; empty selects all
	SystemPrompt string   `toml:"system_prompt"`
}

// RelayConfig holds the relay server and upstream settings.
type RelayConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	UpstreamURL  string   `toml:"upstream_url"`
	ProviderName string   `toml:"provider_name"`
	Timeout      Duration `toml:"timeout"`
	Referer      string   `toml:"referer"`
	Title        string   `toml:"title"`
}

// Addr returns the listen address.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// OrchestratorConfig holds fan-out settings.
type OrchestratorConfig struct {
	FlushInterval Duration `toml:"flush_interval"`
	FlushBytes    int      `toml:"flush_bytes"`
	// RelayURL points at a remote relay; empty runs the relay in-process.
	RelayURL string `toml:"relay_url"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// BackendConfig is one catalog entry.
type BackendConfig struct {
	ID        string `toml:"id"`
	Label     string `toml:"label"`
	Streaming bool   `toml:"streaming"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"` // "text" or "json"
}

// Duration is a time.Duration written as "120s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load reads configuration from the default path and the environment.
func Load() (*Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads configuration from path, if it exists, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if p := os.Getenv("CHORUS_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(StateDir(), "config.toml")
}

// StateDir returns the chorus state directory.
func StateDir() string {
	if p := os.Getenv("CHORUS_STATE_DIR"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chorus")
}

// LogsDir returns the logs directory.
func LogsDir() string {
	return filepath.Join(StateDir(), "logs")
}

// DefaultBackends is the catalog used when the config lists none.
var DefaultBackends = []BackendConfig{
	{ID: "openai/gpt-4o-mini", Label: "GPT-4o mini", Streaming: true},
	{ID: "anthropic/claude-3.5-haiku", Label: "Claude Haiku", Streaming: true},
	{ID: "google/gemini-2.0-flash-001", Label: "Gemini Flash", Streaming: true},
	{ID: "meta-llama/llama-3.3-70b-instruct", Label: "Llama 3.3", Streaming: true},
}

func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:         "127.0.0.1",
			Port:         8787,
			UpstreamURL:  "https://openrouter.ai/api/v1",
			ProviderName: "openrouter",
			Timeout:      Duration{120 * time.Second},
			Title:        "chorus",
		},
		Orchestrator: OrchestratorConfig{
			FlushInterval: Duration{24 * time.Millisecond},
			FlushBytes:    512,
		},
		Provider: make(map[string]ProviderConfig),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) applyEnv() {
	if c.Provider == nil {
		c.Provider = make(map[string]ProviderConfig)
	}

	// OpenRouter is the shared key of the relay
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		p := c.Provider["openrouter"]
		p.APIKey = key
		c.Provider["openrouter"] = p
	}

	// Anthropic
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p := c.Provider["anthropic"]
		p.APIKey = key
		c.Provider["anthropic"] = p
	}

	if models := os.Getenv("CHORUS_MODELS"); models != "" {
		c.Defaults.Models = splitList(models)
	}

	if url := os.Getenv("CHORUS_RELAY_URL"); url != "" {
		c.Orchestrator.RelayURL = url
	}

	if level := os.Getenv("CHORUS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		if strings.HasPrefix(p, "$HOME/") {
			return filepath.Join(home, p[6:])
		}
		return p
	}

	c.Logging.File = expand(c.Logging.File)
}

// Validate checks values that would otherwise fail later and obscurely.
func (c *Config) Validate() error {
	if c.Relay.Timeout.Duration <= 0 {
		return fmt.Errorf("relay.timeout must be positive")
	}
	if c.Orchestrator.FlushInterval.Duration <= 0 {
		return fmt.Errorf("orchestrator.flush_interval must be positive")
	}
	if c.Orchestrator.FlushBytes <= 0 {
		return fmt.Errorf("orchestrator.flush_bytes must be positive")
	}
	seen := make(map[string]bool)
	for _, b := range c.Backends {
		if b.ID == "" {
			return fmt.Errorf("backend entry without id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate backend %q", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// Catalog returns the configured backends, or the defaults.
func (c *Config) Catalog() []BackendConfig {
	if len(c.Backends) > 0 {
		return c.Backends
	}
	return DefaultBackends
}

// SharedKey returns the key the relay uses for requests without their own.
func (c *Config) SharedKey() string {
	return c.Provider["openrouter"].APIKey
}

// Save writes the config to file.
func (c *Config) Save() error {
	return c.SaveFile(ConfigPath())
}

// SaveFile writes the config to path.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// EnsureDirs creates necessary directories.
func EnsureDirs() error {
	dirs := []string{
		StateDir(),
		LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
