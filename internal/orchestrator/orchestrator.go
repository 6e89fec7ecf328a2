// Package orchestrator fans one prompt out to several backends and merges
// their answers into a thread as they arrive.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eachlabs/chorus/internal/provider"
	"github.com/eachlabs/chorus/internal/relay"
	"github.com/eachlabs/chorus/internal/thread"
)

// PendingText is the placeholder content shown until a backend answers.
const PendingText = "…"

// EmptyText replaces an answer that came back without any text.
const EmptyText = "No response received."

const (
	DefaultFlushInterval = 24 * time.Millisecond
	DefaultFlushBytes    = 512
)

// Streamer opens a normalized event stream. *relay.Relay and *relay.Client
// both satisfy it.
type Streamer interface {
	Stream(ctx context.Context, req relay.Request) (<-chan relay.Event, error)
}

// Backend is one selectable model.
type Backend struct {
	ID        string `toml:"id" json:"id"` // upstream model id
	Label     string `toml:"label" json:"label"`
	Streaming bool   `toml:"streaming" json:"streaming"`
}

// Name returns the label, or the id when there is none.
func (b Backend) Name() string {
	if b.Label != "" {
		return b.Label
	}
	return b.ID
}

// Attachment is a file sent along with a prompt.
type Attachment struct {
	Name     string
	MIMEType string
	DataURL  string // images
	Text     string // extracted text of other files
}

// IsImage reports whether a is an image attachment.
func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(a.MIMEType, "image/") && a.DataURL != ""
}

// Config holds orchestrator configuration.
type Config struct {
	Store    *thread.Store
	Streamer Streamer
	Caller   provider.Provider // single-shot path and zero-delta fallback
	Backends []Backend
	Selected []string // default selection; all backends when empty

	SystemPrompt string
	Credential   string // caller's own key; empty uses the shared one
	Referer      string
	Title        string

	FlushInterval time.Duration
	FlushBytes    int

	Sanitize   MessageSanitizer
	Sanitizers *relay.Sanitizers // applied to single-shot answers
	Logger     *slog.Logger
}

// Orchestrator dispatches prompts to backends.
type Orchestrator struct {
	config   Config
	store    *thread.Store
	tasks    *taskTable
	logger   *slog.Logger
	backends []Backend

	mu       sync.RWMutex
	selected []string

	// serializes the setup half of Dispatch and EditTurn
	dispatchMu sync.Mutex
}

// New creates a new orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if cfg.Streamer == nil && cfg.Caller == nil {
		return nil, errors.New("orchestrator: a streamer or a caller is required")
	}
	if len(cfg.Backends) == 0 {
		return nil, errors.New("orchestrator: no backends configured")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushBytes <= 0 {
		cfg.FlushBytes = DefaultFlushBytes
	}
	if cfg.Sanitize == nil {
		cfg.Sanitize = DefaultSanitizer
	}
	if cfg.Sanitizers == nil {
		cfg.Sanitizers = relay.DefaultSanitizers()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	seen := make(map[string]bool, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if b.ID == "" {
			return nil, errors.New("orchestrator: backend id cannot be empty")
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("orchestrator: duplicate backend %q", b.ID)
		}
		seen[b.ID] = true
	}

	o := &Orchestrator{
		config:   cfg,
		store:    cfg.Store,
		tasks:    newTaskTable(),
		logger:   cfg.Logger,
		backends: append([]Backend(nil), cfg.Backends...),
	}
	if err := o.Select(cfg.Selected...); err != nil {
		return nil, err
	}
	return o, nil
}

// Store returns the thread store the orchestrator writes to.
func (o *Orchestrator) Store() *thread.Store {
	return o.store
}

// Backends returns the catalog.
func (o *Orchestrator) Backends() []Backend {
	return append([]Backend(nil), o.backends...)
}

// Select sets the default backends. No ids selects every backend.
func (o *Orchestrator) Select(ids ...string) error {
	resolved, err := o.Resolve(ids...)
	if err != nil {
		return err
	}
	sel := make([]string, len(resolved))
	for i, b := range resolved {
		sel[i] = b.ID
	}

	o.mu.Lock()
	o.selected = sel
	o.mu.Unlock()
	return nil
}

// Selected returns the default backends.
func (o *Orchestrator) Selected() []Backend {
	o.mu.RLock()
	ids := append([]string(nil), o.selected...)
	o.mu.RUnlock()

	out, _ := o.Resolve(ids...)
	return out
}

// Resolve maps names to catalog entries. A name matches a backend id, its
// label, or the id without its vendor prefix, case-insensitively. No names
// resolves to the whole catalog.
func (o *Orchestrator) Resolve(names ...string) ([]Backend, error) {
	if len(names) == 0 {
		return o.Backends(), nil
	}
	out := make([]Backend, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		b, ok := o.lookup(name)
		if !ok {
			return nil, fmt.Errorf("backend not found: %s", name)
		}
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	return out, nil
}

func (o *Orchestrator) lookup(name string) (Backend, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, b := range o.backends {
		if strings.ToLower(b.ID) == name || strings.ToLower(b.Label) == name {
			return b, true
		}
	}
	for _, b := range o.backends {
		if _, model, ok := strings.Cut(b.ID, "/"); ok && strings.ToLower(model) == name {
			return b, true
		}
	}
	return Backend{}, false
}

// Active reports how many tasks are still running for threadID.
func (o *Orchestrator) Active(threadID string) int {
	return o.tasks.count(threadID)
}

// Cancel stops every task of threadID and waits for them to exit.
func (o *Orchestrator) Cancel(threadID string) {
	o.tasks.cancelThread(threadID)
}
