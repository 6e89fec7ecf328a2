package commands

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/eachlabs/chorus/internal/config"
	"github.com/eachlabs/chorus/internal/orchestrator"
	"github.com/eachlabs/chorus/internal/provider"
	"github.com/eachlabs/chorus/internal/relay"
	"github.com/eachlabs/chorus/internal/thread"
)

// newRouter registers OpenRouter as the fallback for every model. A direct
// Anthropic key takes over anthropic/* models, and any other provider with
// a base_url serves "<name>/*".
func newRouter(cfg *config.Config) (*provider.Router, error) {
	router := provider.NewRouter()

	or := cfg.Provider["openrouter"]
	if err := router.Register(provider.NewOpenRouter(provider.OpenAICompatibleConfig{
		APIKey:  cfg.SharedKey(),
		BaseURL: firstNonEmpty(or.BaseURL, cfg.Relay.UpstreamURL),
		Model:   or.Model,
	})); err != nil {
		return nil, err
	}
	if err := router.SetFallback("openrouter"); err != nil {
		return nil, err
	}

	if ac, ok := cfg.Provider["anthropic"]; ok && ac.APIKey != "" {
		if err := router.Register(provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:  ac.APIKey,
			BaseURL: ac.BaseURL,
			Model:   ac.Model,
		})); err != nil {
			return nil, err
		}
		if err := router.Route("anthropic/*", "anthropic"); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(cfg.Provider))
	for name := range cfg.Provider {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := cfg.Provider[name]
		if name == "openrouter" || name == "anthropic" || pc.BaseURL == "" {
			continue
		}
		if err := router.Register(provider.NewOpenAICompatible(provider.OpenAICompatibleConfig{
			Name:    name,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
		})); err != nil {
			return nil, err
		}
		if err := router.Route(name+"/*", name); err != nil {
			return nil, err
		}
	}

	return router, nil
}

func newRelay(cfg *config.Config, logger *slog.Logger) *relay.Relay {
	return relay.New(relay.Config{
		UpstreamURL:  cfg.Relay.UpstreamURL,
		ProviderName: cfg.Relay.ProviderName,
		Timeout:      cfg.Relay.Timeout.Duration,
		Referer:      cfg.Relay.Referer,
		Title:        cfg.Relay.Title,
		SharedKey:    cfg.SharedKey(),
		Logger:       logger.With("component", "relay"),
	})
}

// newOrchestrator streams through the remote relay when one is configured,
// otherwise through an in-process one. Single-shot calls follow the same
// choice.
func newOrchestrator(cfg *config.Config, store *thread.Store, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	var (
		streamer orchestrator.Streamer
		caller   provider.Provider
	)
	if url := cfg.Orchestrator.RelayURL; url != "" {
		client := relay.NewClient(url, nil, logger.With("component", "relay-client"))
		streamer, caller = client, client
	} else {
		router, err := newRouter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up providers: %w", err)
		}
		streamer, caller = newRelay(cfg, logger), router
	}

	catalog := cfg.Catalog()
	backends := make([]orchestrator.Backend, len(catalog))
	for i, b := range catalog {
		backends[i] = orchestrator.Backend{ID: b.ID, Label: b.Label, Streaming: b.Streaming}
	}

	return orchestrator.New(orchestrator.Config{
		Store:         store,
		Streamer:      streamer,
		Caller:        caller,
		Backends:      backends,
		Selected:      cfg.Defaults.Models,
		SystemPrompt:  cfg.Defaults.SystemPrompt,
		Referer:       cfg.Relay.Referer,
		Title:         cfg.Relay.Title,
		FlushInterval: cfg.Orchestrator.FlushInterval.Duration,
		FlushBytes:    cfg.Orchestrator.FlushBytes,
		Sanitizers:    relay.DefaultSanitizers(),
		Logger:        logger.With("component", "orchestrator"),
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
