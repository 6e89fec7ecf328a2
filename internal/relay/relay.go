// Package relay turns an upstream OpenAI-style event stream into chorus's
// normalized events, and serves that stream over HTTP.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/eachlabs/chorus/internal/sse"
)

const (
	DefaultUpstreamURL  = "https://openrouter.ai/api/v1"
	DefaultProviderName = "openrouter"
	DefaultTimeout      = 120 * time.Second

	readSize     = 4096
	maxErrorBody = 64 * 1024
)

// Config configures a Relay.
type Config struct {
	UpstreamURL  string
	ProviderName string
	Timeout      time.Duration

	// Attribution headers sent when the request carries none.
	Referer string
	Title   string

	// SharedKey is used when a request has no credential of its own.
	SharedKey string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Sanitizers *Sanitizers
}

// Relay streams chat completions from one upstream endpoint.
type Relay struct {
	cfg        Config
	client     *http.Client
	logger     *slog.Logger
	sanitizers *Sanitizers
}

// New creates a Relay, filling unset fields with defaults.
func New(cfg Config) *Relay {
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = DefaultUpstreamURL
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = DefaultProviderName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	r := &Relay{
		cfg:        cfg,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
		sanitizers: cfg.Sanitizers,
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.sanitizers == nil {
		r.sanitizers = DefaultSanitizers()
	}
	return r
}

// Validate reports whether req could be relayed, without any network call.
func (r *Relay) Validate(req Request) error {
	_, _, err := credential(req, r.cfg.SharedKey)
	return err
}

// Stream starts relaying req. A *ValidationError is returned before any
// network call; every later failure arrives as a terminal error event.
// The channel is closed when the stream ends. Cancelling ctx ends the
// stream silently.
func (r *Relay) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	key, kind, err := credential(req, r.cfg.SharedKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(r.upstreamBody(req))
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	s := &stream{
		relay:    r,
		parent:   ctx,
		model:    req.Model,
		keyKind:  kind,
		provider: r.cfg.ProviderName,
		sanitize: r.sanitizers.For(req.Model),
		out:      make(chan Event, 16),
		log:      r.logger.With("model", req.Model),
	}

	go s.run(key, body, req)
	return s.out, nil
}

type upstreamMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type upstreamRequest struct {
	Model    string            `json:"model"`
	Messages []upstreamMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

func (r *Relay) upstreamBody(req Request) upstreamRequest {
	last := -1
	if req.ImageDataURL != "" {
		last = lastUser(req.Messages)
	}

	msgs := make([]upstreamMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		switch {
		case i == last:
			msgs = append(msgs, upstreamMessage{
				Role: m.Role,
				Content: []contentPart{
					{Type: "text", Text: m.Content},
					{Type: "image_url", ImageURL: &imageURL{URL: req.ImageDataURL}},
				},
			})
		case m.HasImage:
			msgs = append(msgs, upstreamMessage{Role: m.Role, Content: withOmittedImage(m.Content)})
		default:
			msgs = append(msgs, upstreamMessage{Role: m.Role, Content: m.Content})
		}
	}
	return upstreamRequest{Model: req.Model, Messages: msgs, Stream: true}
}

// stream is the state of one relayed connection.
type stream struct {
	relay    *Relay
	parent   context.Context
	ctx      context.Context // parent plus the connection deadline
	model    string
	keyKind  string
	provider string
	sanitize Sanitizer
	opened   bool // upstream answered 2xx
	metaSent bool
	out      chan Event
	log      *slog.Logger
}

func (s *stream) run(key string, body []byte, req Request) {
	defer close(s.out)

	ctx, cancel := context.WithTimeout(s.parent, s.relay.cfg.Timeout)
	defer cancel()
	s.ctx = ctx

	url := strings.TrimSuffix(s.relay.cfg.UpstreamURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.fail(fmt.Errorf("build upstream request: %w", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", sse.ContentType)
	httpReq.Header.Set("Authorization", "Bearer "+key)
	if v := firstNonEmpty(req.Referer, s.relay.cfg.Referer); v != "" {
		httpReq.Header.Set("HTTP-Referer", v)
	}
	if v := firstNonEmpty(req.Title, s.relay.cfg.Title); v != "" {
		httpReq.Header.Set("X-Title", v)
	}

	start := time.Now()
	resp, err := s.relay.client.Do(httpReq)
	if err != nil {
		s.fail(fmt.Errorf("upstream connect: %w", err))
		return
	}
	if resp.Body == nil {
		s.emitError(http.StatusBadGateway, "upstream returned no body")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.handshakeError(resp)
		return
	}
	s.opened = true
	s.log.Debug("upstream stream opened", "status", resp.StatusCode, "latency", time.Since(start))

	var framer sse.Framer
	buf := make([]byte, readSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, payload := range framer.Feed(buf[:n]) {
				if !s.handle(payload) {
					return
				}
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if payload, ok := framer.Flush(); ok && !s.handle(payload) {
				return
			}
			s.finish()
			return
		}
		s.fail(fmt.Errorf("upstream read: %w", err))
		return
	}
}

// handle relays one payload and reports whether to keep reading.
func (s *stream) handle(payload string) bool {
	if payload == sse.Done {
		s.finish()
		return false
	}

	c, err := decodeChunk(payload)
	if err != nil {
		s.log.Debug("skipping malformed chunk", "error", err, "payload", truncate(payload, 128))
		return true
	}
	if c.provider != "" {
		s.provider = c.provider
	}

	switch c.kind {
	case chunkError:
		code := c.code
		if code == 0 {
			code = http.StatusBadGateway
		}
		s.log.Warn("upstream error mid-stream", "code", code, "error", c.message)
		return s.emitError(code, c.message)
	case chunkText:
		text := s.sanitize(c.text)
		if text == "" {
			return true
		}
		return s.emit(Event{Kind: KindDelta, Text: text})
	}
	return true
}

func (s *stream) handshakeError(resp *http.Response) {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := ""
	if gjson.ValidBytes(raw) {
		res := gjson.ParseBytes(raw)
		if e := res.Get("error"); e.Exists() {
			message, _ = decodeError(e)
		} else {
			message = res.Get("message").String()
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	s.log.Warn("upstream handshake failed", "status", resp.StatusCode, "error", truncate(message, 256))
	s.emitError(resp.StatusCode, message)
}

// fail reports a transport failure. Caller cancellation is silent; the
// connection deadline becomes a 408.
func (s *stream) fail(err error) {
	if s.parent.Err() != nil {
		return
	}
	if errors.Is(s.ctx.Err(), context.DeadlineExceeded) {
		s.log.Warn("upstream timed out", "timeout", s.relay.cfg.Timeout)
		s.emitError(http.StatusRequestTimeout, "")
		return
	}
	s.log.Warn("upstream stream failed", "error", err)
	s.emitError(http.StatusBadGateway, err.Error())
}

func (s *stream) finish() {
	s.emit(Event{Kind: KindDone})
}

func (s *stream) emitError(code int, message string) bool {
	return s.emit(Event{
		Kind:        KindError,
		Code:        code,
		Message:     DescribeError(code, message, s.model, s.keyKind),
		Provider:    s.provider,
		UsedKeyType: s.keyKind,
	})
}

// emit delivers ev. Once the upstream stream is open the first event of
// any kind is preceded by meta; a failed handshake yields the error alone.
// It returns false once the caller has gone away.
func (s *stream) emit(ev Event) bool {
	if s.opened && !s.metaSent {
		s.metaSent = true
		if !s.send(Event{Kind: KindMeta, Provider: s.provider, UsedKeyType: s.keyKind}) {
			return false
		}
	}
	return s.send(ev)
}

func (s *stream) send(ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.parent.Done():
		return false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
