package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Router is a Provider that dispatches each request to a registered
// provider chosen by model pattern.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	routes    map[string]string // model pattern -> provider name
	fallback  string
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
		routes:    make(map[string]string),
	}
}

// Register adds a provider under its Name.
func (r *Router) Register(p Provider) error {
	if p == nil {
		return errors.New("router: provider cannot be nil")
	}
	if p.Name() == "" {
		return errors.New("router: provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
	return nil
}

// Route maps a model pattern to a registered provider. Patterns support
// exact ids, "prefix*", "*suffix" and "*contains*".
func (r *Router) Route(pattern, providerName string) error {
	if pattern == "" {
		return errors.New("router: model pattern cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[providerName]; !ok {
		return fmt.Errorf("router: provider %q not registered", providerName)
	}
	r.routes[strings.ToLower(pattern)] = providerName
	return nil
}

// SetFallback names the provider used when no route matches.
func (r *Router) SetFallback(providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[providerName]; !ok {
		return fmt.Errorf("router: provider %q not registered", providerName)
	}
	r.fallback = providerName
	return nil
}

func (r *Router) Name() string {
	return "router"
}

// Chat forwards req to the provider routed for req.Model.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	p, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Chat(ctx, req)
}

// Resolve returns the provider that would serve model.
func (r *Router) Resolve(model string) (Provider, error) {
	model = strings.ToLower(strings.TrimSpace(model))

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.routes[model]
	if !ok {
		// Longest pattern wins so "anthropic/claude-3*" beats "anthropic/*".
		patterns := make([]string, 0, len(r.routes))
		for p := range r.routes {
			patterns = append(patterns, p)
		}
		sort.Slice(patterns, func(i, j int) bool {
			if len(patterns[i]) != len(patterns[j]) {
				return len(patterns[i]) > len(patterns[j])
			}
			return patterns[i] < patterns[j]
		})
		for _, p := range patterns {
			if matchPattern(model, p) {
				name, ok = r.routes[p], true
				break
			}
		}
	}
	if !ok {
		name = r.fallback
	}

	p, found := r.providers[name]
	if !found {
		return nil, fmt.Errorf("router: no provider found for model %q", model)
	}
	return p, nil
}

func matchPattern(model, pattern string) bool {
	if model == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1 {
		return strings.Contains(model, strings.Trim(pattern, "*"))
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(model, strings.TrimPrefix(pattern, "*"))
	}
	return false
}
