package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eachlabs/chorus/internal/provider"
	"github.com/eachlabs/chorus/internal/relay"
	"github.com/eachlabs/chorus/internal/thread"
)

// step is one scripted stream action: an event, a wait on a channel, or
// both (wait first).
type step struct {
	wait <-chan struct{}
	ev   relay.Event
}

func meta(p string) step { return step{ev: relay.Event{Kind: relay.KindMeta, Provider: p, UsedKeyType: "shared"}} }
func delta(s string) step { return step{ev: relay.Event{Kind: relay.KindDelta, Text: s}} }
func done() step { return step{ev: relay.Event{Kind: relay.KindDone}} }
func hold(c chan struct{}) step { return step{wait: c} }
func failure(code int, msg string) step {
	return step{ev: relay.Event{Kind: relay.KindError, Code: code, Message: msg, Provider: "p", UsedKeyType: "user"}}
}

type fakeStreamer struct {
	mu      sync.Mutex
	scripts map[string][]step
	endless bool // emit "x" every millisecond until cancelled
	reqs    []relay.Request
	err     error
}

func (f *fakeStreamer) Stream(ctx context.Context, req relay.Request) (<-chan relay.Event, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	script := f.scripts[req.Model]
	endless, err := f.endless, f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan relay.Event)
	go func() {
		defer close(out)
		send := func(ev relay.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if endless {
			if !send(relay.Event{Kind: relay.KindMeta, Provider: "p", UsedKeyType: "shared"}) {
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
				if !send(relay.Event{Kind: relay.KindDelta, Text: "x"}) {
					return
				}
			}
		}
		for _, s := range script {
			if s.wait != nil {
				select {
				case <-s.wait:
				case <-ctx.Done():
					return
				}
			}
			if s.ev.Kind != "" && !send(s.ev) {
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeStreamer) requests() []relay.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.Request(nil), f.reqs...)
}

func (f *fakeStreamer) setEndless(v bool) {
	f.mu.Lock()
	f.endless = v
	f.mu.Unlock()
}

type fakeCaller struct {
	mu    sync.Mutex
	text  map[string]string
	err   error
	block bool // wait for cancellation
	reqs  []*provider.ChatRequest
}

func (f *fakeCaller) Name() string { return "fake" }

func (f *fakeCaller) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &provider.ChatResponse{
		Text:        f.text[req.Model],
		Provider:    "single",
		UsedKeyType: provider.KeyShared,
	}, nil
}

func (f *fakeCaller) calls() []*provider.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*provider.ChatRequest(nil), f.reqs...)
}

var testBackends = []Backend{
	{ID: "openai/gpt-4o", Label: "GPT", Streaming: true},
	{ID: "anthropic/claude", Label: "Claude", Streaming: true},
	{ID: "meta/llama", Label: "Llama", Streaming: false},
}

func newTestOrchestrator(t *testing.T, s Streamer, c provider.Provider, mutate ...func(*Config)) (*Orchestrator, string) {
	t.Helper()
	cfg := Config{
		Store:         thread.NewStore(),
		Streamer:      s,
		Caller:        c,
		Backends:      testBackends,
		FlushInterval: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	th := o.Store().Create("")
	return o, th.ID
}

func wait(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not settle")
	}
}

// eventually polls cond until it holds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func message(t *testing.T, o *Orchestrator, threadID string, key thread.Key) thread.Message {
	t.Helper()
	m, err := o.Store().Message(threadID, key)
	if err != nil {
		t.Fatalf("Message(%v) error = %v", key, err)
	}
	return m
}
