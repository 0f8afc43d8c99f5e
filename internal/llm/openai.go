package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

const (
	// DefaultOpenAIModel is the chat model used when none is configured.
	DefaultOpenAIModel = "gpt-4.1"

	// DefaultOpenAIBaseURL is the public OpenAI endpoint.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAIConfig holds the parameters needed to create an OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the chat model identifier.
	Model string
	// BaseURL is the API base URL. Tests point it at an httptest server.
	BaseURL string
}

// OpenAIProvider implements CandidateGenerator using the OpenAI chat completions API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	metrics     *observability.Metrics
}

// NewOpenAIProvider creates a new OpenAIProvider. Retries of 429 and 5xx
// responses are delegated to the SDK.
func NewOpenAIProvider(cfg OpenAIConfig, opts Options) *OpenAIProvider {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIProvider{
		client:      openai.NewClient(clientOptions(cfg, opts)...),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		metrics:     opts.Metrics,
	}
}

func clientOptions(cfg OpenAIConfig, opts Options) []option.RequestOption {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(maxRetries),
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
}

// Generate asks the model for up to maxCount books matching prompt.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, maxCount int) ([]domain.CandidateBook, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(BuildUserPrompt(prompt, maxCount)),
		},
		MaxCompletionTokens: openai.Int(int64(p.maxTokens)),
		Temperature:         openai.Float(p.temperature),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai: %w", ctx.Err())
		}
		mapped := mapOpenAIError("openai", err)
		p.recordFailure(mapped)
		return nil, mapped
	}

	if p.metrics != nil {
		p.metrics.RecordLLMRequest(generateOperation, p.model, time.Since(start).Seconds(),
			int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	}

	if len(resp.Choices) == 0 {
		err := domain.NewMalformedResponseError("openai", "response contains no choices")
		p.recordFailure(err)
		return nil, err
	}

	books, err := ParseCandidates(resp.Choices[0].Message.Content, maxCount)
	if err != nil {
		p.recordFailure(err)
		return nil, err
	}
	return books, nil
}

// Provider returns the provider name.
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Model returns the model identifier being used.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) recordFailure(err error) {
	if p.metrics != nil {
		p.metrics.RecordLLMRequestFailed(generateOperation, p.model, errorType(err))
	}
}

// mapOpenAIError converts SDK errors into APIError. Errors without an HTTP
// response are reported as network errors.
func mapOpenAIError(provider string, err error) error {
	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		return &APIError{
			Provider:   provider,
			StatusCode: sdkErr.StatusCode,
			Message:    sdkErr.Message,
			Type:       sdkErr.Type,
			Code:       sdkErr.Code,
		}
	}
	return &APIError{
		Provider: provider,
		Message:  fmt.Sprintf("request failed: %v", err),
		Type:     "network_error",
	}
}
