// Package gemini implements domain.Embedder on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/metrics"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "gemini-embedding-001"

// Task types understood by the Gemini embedding endpoint.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Config holds Gemini client settings.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint; empty uses the public Gemini API.
	BaseURL  string
	Model    string
	Provider string
	Logger   *zap.Logger
}

// Embedder calls Models.EmbedContent with a task type derived from the intent.
type Embedder struct {
	client   *genai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// NewEmbedder creates a Gemini embedding provider.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	e := &Embedder{
		client:   client,
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.provider == "" {
		e.provider = "gemini"
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// Embed implements domain.Embedder. A response without embeddings is an empty result.
func (e *Embedder) Embed(
	ctx context.Context, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{}, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType(intent)}
	if dim > 0 {
		d := int32(dim) //nolint:gosec // dimensionality is validated by config
		cfg.OutputDimensionality = &d
	}

	start := time.Now()
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, intent.String(), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "api_error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.EmbeddingResult{}, fmt.Errorf("gemini embed: %w", err)
		}
		return domain.EmbeddingResult{}, fmt.Errorf("gemini embed: %w: %w", domain.ErrEmbeddingProvider, err)
	}
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())

	if resp == nil || len(resp.Embeddings) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, intent.String(), "empty").Inc()
		e.logger.Debug("gemini returned no embeddings", zap.Int("texts", len(texts)))
		return domain.EmbeddingResult{}, nil
	}
	if len(resp.Embeddings) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, intent.String(), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "count_mismatch").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(resp.Embeddings), domain.ErrEmbeddingProvider)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb != nil {
			vectors[i] = emb.Values
		}
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, intent.String(), "success").Inc()
	return domain.EmbeddingResult{Embeddings: vectors}, nil
}

// HealthCheck fetches the model metadata.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.Models.Get(ctx, e.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", e.model, err)
	}
	return nil
}

func taskType(intent domain.TaskIntent) string {
	if intent == domain.IntentQuery {
		return taskRetrievalQuery
	}
	return taskRetrievalDocument
}
