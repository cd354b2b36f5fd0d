// Package llm wraps the Gemini and Claude SDKs behind one text generation call.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"google.golang.org/genai"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ContentRequest is a provider-agnostic single-turn request
type ContentRequest struct {
	Prompt            string
	SystemInstruction string
	Model             string
	Temperature       float32
	MaxTokens         int
}

// ContentResponse is a provider-agnostic response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// Provider generates text from a prompt
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	GetProviderType() ProviderType
	Close() error
}

// DetectProvider determines the provider from a model string such as
// "claude-sonnet-4-5", "claude/claude-sonnet-4-5", "gemini-2.5-flash" or
// "google/gemini-2.5-flash". Unknown names fall back to def.
func DetectProvider(model string, def ProviderType) ProviderType {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return ProviderGemini
	}
	return def
}

// NormalizeModel removes a provider prefix from a model name
func NormalizeModel(model string) string {
	for _, prefix := range []string{"claude/", "anthropic/", "gemini/", "google/"} {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// NewProvider builds the provider named by cfg. The provider is picked from
// the model name first and cfg.Provider second.
func NewProvider(ctx context.Context, cfg common.CoverLetterConfig, logger arbor.ILogger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cover letter provider %q requires an API key", cfg.Provider)
	}
	def := ProviderType(cfg.Provider)
	if def == "" {
		def = ProviderGemini
	}
	kind := DetectProvider(cfg.Model, def)
	model := NormalizeModel(cfg.Model)

	switch kind {
	case ProviderClaude:
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		return &claudeProvider{
			client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
			model:  model,
			cfg:    cfg,
			retry:  NewDefaultRetryConfig(),
			logger: logger,
		}, nil
	case ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return &geminiProvider{
			client: client,
			model:  model,
			cfg:    cfg,
			retry:  NewDefaultRetryConfig(),
			logger: logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", kind)
	}
}

type claudeProvider struct {
	client anthropic.Client
	model  string
	cfg    common.CoverLetterConfig
	retry  *RetryConfig
	logger arbor.ILogger
}

func (p *claudeProvider) GetProviderType() ProviderType { return ProviderClaude }
func (p *claudeProvider) Close() error                  { return nil }

func (p *claudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	model := NormalizeModel(request.Model)
	if model == "" {
		model = p.model
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}
	temp := request.Temperature
	if temp <= 0 {
		temp = p.cfg.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}
	if request.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.SystemInstruction}}
	}

	resp, err := withRetry(ctx, p.retry, string(ProviderClaude), p.logger, func() (*anthropic.Message, error) {
		return p.client.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{Text: text.String(), Provider: ProviderClaude, Model: model}, nil
}

type geminiProvider struct {
	client *genai.Client
	model  string
	cfg    common.CoverLetterConfig
	retry  *RetryConfig
	logger arbor.ILogger
}

func (p *geminiProvider) GetProviderType() ProviderType { return ProviderGemini }
func (p *geminiProvider) Close() error                  { return nil }

func (p *geminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	model := NormalizeModel(request.Model)
	if model == "" {
		model = p.model
	}
	temp := request.Temperature
	if temp <= 0 {
		temp = p.cfg.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if maxTokens := request.MaxTokens; maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	} else if p.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(request.Prompt, genai.RoleUser)}

	resp, err := withRetry(ctx, p.retry, string(ProviderGemini), p.logger, func() (*genai.GenerateContentResponse, error) {
		return p.client.Models.GenerateContent(ctx, model, contents, config)
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{Text: text, Provider: ProviderGemini, Model: model}, nil
}
