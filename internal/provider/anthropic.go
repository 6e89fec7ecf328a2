package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic implements the Provider interface for Claude models.
type Anthropic struct {
	client *anthropic.Client
	apiKey string
	model  string
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewAnthropic creates a new Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	return &Anthropic{
		client: client,
		apiKey: cfg.APIKey,
		model:  model,
	}
}

func (a *Anthropic) Name() string {
	return "anthropic"
}

// Chat sends a non-streaming request.
func (a *Anthropic) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	key, kind, err := resolveKey(req, a.apiKey)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	system, messages := a.buildMessages(req)
	if len(messages) == 0 {
		return nil, fmt.Errorf("anthropic: no messages provided")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	// Router-style ids ("anthropic/claude-...") name the vendor first.
	model := strings.TrimPrefix(req.Model, "anthropic/")
	if model == "" {
		model = a.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(model)),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}

	resp, err := a.client.Messages.New(ctx, params, option.WithAPIKey(key))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{
				Provider:   "anthropic",
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Error(),
			}
		}
		return nil, fmt.Errorf("anthropic chat failed: %w", err)
	}

	return a.parseResponse(resp, kind), nil
}

// buildMessages folds system entries into one prompt and merges runs of
// same-role turns, which the Messages API rejects.
func (a *Anthropic) buildMessages(req *ChatRequest) (string, []anthropic.MessageParam) {
	var (
		system []string
		result []anthropic.MessageParam
		roles  []string
	)

	imageAt := -1
	if req.ImageDataURL != "" {
		imageAt = lastUserIndex(req.Messages)
	}

	for i, msg := range req.Messages {
		if msg.Role == "system" {
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if i == imageAt {
			if mediaType, data, ok := splitDataURL(req.ImageDataURL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			}
		}
		blocks = append(blocks, anthropic.TextBlockParam{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(msg.Content),
		})

		var role anthropic.MessageParamRole
		switch msg.Role {
		case "user":
			role = anthropic.MessageParamRoleUser
		case "assistant":
			role = anthropic.MessageParamRoleAssistant
		default:
			continue
		}

		if n := len(result); n > 0 && roles[n-1] == msg.Role {
			prev := result[n-1].Content.Value
			result[n-1].Content = anthropic.F(append(prev, blocks...))
			continue
		}

		result = append(result, anthropic.MessageParam{
			Role:    anthropic.F(role),
			Content: anthropic.F(blocks),
		})
		roles = append(roles, msg.Role)
	}

	return strings.Join(system, "\n\n"), result
}

func (a *Anthropic) parseResponse(resp *anthropic.Message, kind string) *ChatResponse {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}

	raw, _ := json.Marshal(resp)

	return &ChatResponse{
		Text:        text.String(),
		Raw:         raw,
		Provider:    "anthropic",
		UsedKeyType: kind,
		Tokens: &Usage{
			Prompt:     int(resp.Usage.InputTokens),
			Completion: int(resp.Usage.OutputTokens),
			Total:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// splitDataURL splits "data:image/png;base64,AAAA" into its media type
// and payload.
func splitDataURL(u string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(u, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, _, _ = strings.Cut(meta, ";")
	return mediaType, data, mediaType != "" && data != ""
}
