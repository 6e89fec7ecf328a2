package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAICompatible implements Provider for any OpenAI-style chat
// completions API (OpenRouter, each::labs router, OpenAI itself).
type OpenAICompatible struct {
	client *openai.Client
	name   string
	apiKey string
	model  string
}

// OpenAICompatibleConfig holds configuration for an OpenAI-style provider.
type OpenAICompatibleConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	Model      string // used when a request names no model
	HTTPClient *http.Client
}

// NewOpenRouter creates a provider talking to OpenRouter.
func NewOpenRouter(cfg OpenAICompatibleConfig) *OpenAICompatible {
	if cfg.Name == "" {
		cfg.Name = "openrouter"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	return NewOpenAICompatible(cfg)
}

// NewOpenAICompatible creates a provider for an OpenAI-style endpoint.
func NewOpenAICompatible(cfg OpenAICompatibleConfig) *OpenAICompatible {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/") + "/"),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)

	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &OpenAICompatible{
		client: &client,
		name:   name,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *OpenAICompatible) Name() string {
	return p.name
}

// Chat sends a non-streaming request.
func (p *OpenAICompatible) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%s: no messages provided", p.name)
	}
	key, kind, err := resolveKey(req, p.apiKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: p.buildMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if req.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", req.Referer))
	}
	if req.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", req.Title))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{
				Provider:   p.name,
				StatusCode: apiErr.StatusCode,
				Message:    upstreamMessage(apiErr.RawJSON(), apiErr.Error()),
			}
		}
		return nil, fmt.Errorf("%s chat failed: %w", p.name, err)
	}

	return p.parseResponse(resp, kind), nil
}

func (p *OpenAICompatible) buildMessages(req *ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	imageAt := -1
	if req.ImageDataURL != "" {
		imageAt = lastUserIndex(req.Messages)
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "user":
			if i == imageAt {
				parts := []openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(msg.Content),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: req.ImageDataURL,
					}),
				}
				messages = append(messages, openai.UserMessage(parts))
			} else {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	return messages
}

func (p *OpenAICompatible) parseResponse(resp *openai.ChatCompletion, kind string) *ChatResponse {
	raw := resp.RawJSON()

	result := &ChatResponse{
		Provider:    p.name,
		UsedKeyType: kind,
	}
	if raw != "" {
		result.Raw = json.RawMessage(raw)
		// OpenRouter reports the upstream vendor that served the call.
		if vendor := gjson.Get(raw, "provider").String(); vendor != "" {
			result.Provider = vendor
		}
	}

	if len(resp.Choices) > 0 {
		result.Text = resp.Choices[0].Message.Content
	}

	if resp.Usage.TotalTokens > 0 {
		result.Tokens = &Usage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		}
	}

	return result
}

// upstreamMessage digs the human message out of an error body.
func upstreamMessage(raw, fallback string) string {
	if raw != "" {
		for _, path := range []string{"error.message", "message"} {
			if m := gjson.Get(raw, path).String(); m != "" {
				return m
			}
		}
	}
	return fallback
}
