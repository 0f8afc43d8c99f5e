package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

// DefaultEmbeddingModel is the embedding model used when none is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

const embedOperation = "embed"

// Embedder turns texts into vectors, one per input in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbedder implements Embedder with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	metrics *observability.Metrics
}

// NewOpenAIEmbedder creates an embedder. cfg.Model names the embedding model.
func NewOpenAIEmbedder(cfg OpenAIConfig, opts Options) *OpenAIEmbedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(clientOptions(cfg, opts)...),
		model:   model,
		metrics: opts.Metrics,
	}
}

// Model returns the embedding model identifier.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed embeds all texts in a single request. Blank texts are rejected by the
// API, so the caller substitutes a title for a missing description.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai embeddings: %w", ctx.Err())
		}
		mapped := mapOpenAIError("openai", err)
		e.recordFailure(mapped)
		return nil, mapped
	}

	if len(resp.Data) != len(texts) {
		err := domain.NewMalformedResponseError("openai",
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		e.recordFailure(err)
		return nil, err
	}

	vectors := make([][]float64, len(texts))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}

	if e.metrics != nil {
		e.metrics.RecordLLMRequest(embedOperation, e.model, time.Since(start).Seconds(),
			int(resp.Usage.PromptTokens), 0)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) recordFailure(err error) {
	if e.metrics != nil {
		e.metrics.RecordLLMRequestFailed(embedOperation, e.model, errorType(err))
	}
}
