package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/metrics"
	"github.com/kailas-cloud/knnsearch/internal/retry"
)

// ErrCircuitOpen is returned while the breaker rejects calls to the provider.
var ErrCircuitOpen = errors.New("embedding provider circuit open")

// ResilientConfig holds the timeout, retry and breaker settings.
type ResilientConfig struct {
	// Name identifies the breaker in logs and metrics.
	Name string
	// Timeout bounds each provider attempt; zero disables it.
	Timeout time.Duration
	Retry   retry.Policy
	// MaxFailures consecutive failures open the breaker; zero uses 5.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing; zero uses 30s.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

// ResilientEmbedder bounds, retries and circuit-breaks provider calls.
type ResilientEmbedder struct {
	inner   domain.Embedder
	breaker *gobreaker.CircuitBreaker
	retry   retry.Policy
	timeout time.Duration
}

// NewResilientEmbedder wraps inner with a per-attempt timeout, retry and a circuit breaker.
func NewResilientEmbedder(inner domain.Embedder, cfg ResilientConfig) *ResilientEmbedder {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// caller cancellation says nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Embedding circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.EmbeddingBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	policy := cfg.Retry
	userRetryable := policy.Retryable
	policy.Retryable = func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) {
			return false
		}
		if userRetryable != nil {
			return userRetryable(err)
		}
		return true
	}

	return &ResilientEmbedder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retry:   policy,
		timeout: cfg.Timeout,
	}
}

// Embed implements domain.Embedder.
func (r *ResilientEmbedder) Embed(
	ctx context.Context, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	var out domain.EmbeddingResult
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		res, err := r.attempt(ctx, texts, intent, dim)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return out, nil
}

func (r *ResilientEmbedder) attempt(
	ctx context.Context, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	v, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Embed(ctx, texts, intent, dim)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	if err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // inner errors are already wrapped
	}
	return v.(domain.EmbeddingResult), nil
}

// State reports the breaker state.
func (r *ResilientEmbedder) State() gobreaker.State {
	return r.breaker.State()
}
