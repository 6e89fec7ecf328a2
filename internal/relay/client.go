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

	"github.com/tidwall/gjson"

	"github.com/eachlabs/chorus/internal/provider"
	"github.com/eachlabs/chorus/internal/sse"
)

// Client talks to a relay Server over HTTP. It streams through
// /api/chat/stream and answers single-shot calls through /api/chat.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the relay at baseURL.
func NewClient(baseURL string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	return resp, nil
}

// Stream opens a relayed stream. A 400 from the relay comes back as a
// *ValidationError.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	resp, err := c.post(ctx, "/api/chat/stream", req, sse.ContentType)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var framer sse.Framer
		buf := make([]byte, readSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				for _, payload := range framer.Feed(buf[:n]) {
					ev, perr := ParseEvent(payload)
					if perr != nil {
						c.logger.Debug("skipping relay event", "error", perr)
						continue
					}
					if !send(ev) || ev.Kind == KindDone {
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					send(Event{Kind: KindError, Code: http.StatusBadGateway, Message: DescribeError(http.StatusBadGateway, err.Error(), req.Model, keyKindOf(req.Credential))})
				}
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) Name() string {
	return "relay"
}

// Chat performs a single-shot call through the relay.
func (c *Client) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	body := Request{
		Model:        req.Model,
		Credential:   req.Credential,
		Referer:      req.Referer,
		Title:        req.Title,
		ImageDataURL: req.ImageDataURL,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, Message{Role: m.Role, Content: m.Content})
	}

	resp, err := c.post(ctx, "/api/chat", body, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var out provider.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode relay response: %w", err)
	}
	return &out, nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := gjson.GetBytes(raw, "error").String()
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode == http.StatusBadRequest {
		return &ValidationError{Field: "request", Message: message}
	}
	return &provider.APIError{Provider: "relay", StatusCode: resp.StatusCode, Message: message}
}
