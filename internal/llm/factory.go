package llm

import (
	"fmt"
	"time"

	"github.com/helixir/book-recommendation-service/internal/observability"
)

// Supported candidate generator providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// FactoryConfig holds the parameters needed to create a CandidateGenerator.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Temperature is the LLM temperature setting.
	Temperature float64
	// MaxTokens caps the completion length.
	MaxTokens int
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int
	// EmbeddingModel is the OpenAI embedding model used for ranking.
	EmbeddingModel string
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
	// Metrics is optional.
	Metrics *observability.Metrics
}

func (c FactoryConfig) options() Options {
	return Options{
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		MaxRetries:  c.MaxRetries,
		Metrics:     c.Metrics,
	}
}

// NewCandidateGenerator creates a CandidateGenerator based on the configuration.
// Supports "openai" and "anthropic" providers. Returns an error for unsupported
// or empty provider values.
func NewCandidateGenerator(cfg FactoryConfig) (CandidateGenerator, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAI, cfg.options()), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.Anthropic, cfg.options()), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbedder creates the embedder used by the ranker. Embeddings always come
// from OpenAI, whichever provider generates candidates.
func NewEmbedder(cfg FactoryConfig) (*OpenAIEmbedder, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("embeddings require an OpenAI API key")
	}
	embedCfg := cfg.OpenAI
	embedCfg.Model = cfg.EmbeddingModel
	return NewOpenAIEmbedder(embedCfg, cfg.options()), nil
}
