// Package app wires configuration, logging, the index store and the embedding
// chain for the knnsearch binaries.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/config"
	dbRedis "github.com/kailas-cloud/knnsearch/internal/db/redis"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	logpkg "github.com/kailas-cloud/knnsearch/internal/logger"
	"github.com/kailas-cloud/knnsearch/internal/metrics"
	"github.com/kailas-cloud/knnsearch/internal/repository/embcache"
	"github.com/kailas-cloud/knnsearch/internal/retry"
	geminiEmb "github.com/kailas-cloud/knnsearch/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/knnsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/knnsearch/internal/usecase/embedding"
)

// Exit codes shared by the binaries.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

// LoadEnv reads .env from the working directory if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}
}

// LoadConfig reads path when set, otherwise config/<ENV>.yaml.
func LoadConfig(path string) (config.Config, string, error) {
	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, env, fmt.Errorf("load config: %w", err)
	}
	return cfg, env, nil
}

// NewLogger builds the process logger. prod logs JSON, everything else console.
func NewLogger(env string, cfg config.Config) (*zap.Logger, error) {
	if env != logpkg.EnvProd {
		env = logpkg.EnvLocal
	}
	l, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return l, nil
}

// RegisterMetrics registers every collector once.
func RegisterMetrics() {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()
}

// RetryPolicy converts the retry section into a policy.
func RetryPolicy(cfg config.RetryConfig) retry.Policy {
	p := retry.New(cfg.Attempts)
	if cfg.BaseMS > 0 {
		p.Base = time.Duration(cfg.BaseMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}
	return p
}

// OpenStore connects to the index store and waits until it answers.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:              cfg.Addrs,
		Username:           cfg.Username,
		Password:           cfg.Password,
		DB:                 cfg.DB,
		TLS:                cfg.TLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Timeout:            time.Duration(cfg.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("store not ready: %w", err)
	}
	logger.Info("Connected to index store", zap.Strings("addrs", cfg.Addrs))
	return store, nil
}

// CacheStore is what the embedding cache needs from the index store.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedding is the assembled provider chain.
type Embedding struct {
	// Embedder is the outermost decorator; use it for all calls.
	Embedder domain.Embedder
	// Health probes the raw provider.
	Health domain.HealthChecker
	// Breaker exposes circuit state.
	Breaker *embeddinguc.ResilientEmbedder
}

// HealthCheck implements health.EmbeddingChecker.
func (e *Embedding) HealthCheck(ctx context.Context) error {
	if err := e.Health.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

// BuildEmbedding assembles the decorator chain:
// provider -> instrumented -> resilient (retry + breaker) -> cached.
// cache may be nil or disabled in config.
func BuildEmbedding(
	ctx context.Context, cfg config.Config, cache CacheStore, logger *zap.Logger,
) (*Embedding, error) {
	ec := cfg.Embedding

	var (
		base   domain.Embedder
		health domain.HealthChecker
	)
	switch ec.Provider {
	case config.ProviderGemini:
		key := firstNonEmpty(ec.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		g, err := geminiEmb.NewEmbedder(ctx, &geminiEmb.Config{
			APIKey:   key,
			BaseURL:  ec.BaseURL,
			Model:    ec.Model,
			Provider: ec.Provider,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		base, health = g, g
	case config.ProviderOpenAI:
		o := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:              firstNonEmpty(ec.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:             ec.BaseURL,
			Model:               ec.Model,
			Provider:            ec.Provider,
			DocumentInstruction: ec.DocumentInstruction,
			QueryInstruction:    ec.QueryInstruction,
			Logger:              logger,
		})
		base, health = o, o
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(base, ec.Provider, ec.Model, logger)
	breaker := embeddinguc.NewResilientEmbedder(instrumented, embeddinguc.ResilientConfig{
		Name:        ec.Provider,
		Timeout:     cfg.EmbeddingTimeout(),
		Retry:       RetryPolicy(cfg.Retry),
		MaxFailures: uint32(ec.BreakerFailures), //nolint:gosec // validated positive
		OpenTimeout: time.Duration(ec.BreakerOpenSec) * time.Second,
		Logger:      logger,
	})

	var out domain.Embedder = breaker
	cached := cache != nil && ec.Cache.Enabled
	if cached {
		out = embcache.New(breaker, cache, cacheNamespace(ec), metrics.EmbeddingCacheTotal, logger).
			WithTTL(time.Duration(ec.Cache.TTLHours) * time.Hour)
	}

	logger.Info("Embedder created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.Int("dimensions", ec.Dimensions),
		zap.Bool("cache", cached),
	)
	return &Embedding{Embedder: out, Health: health, Breaker: breaker}, nil
}

// cacheNamespace separates cache entries whose vectors would differ.
// Instruction prefixes change the embedded text, so they are part of the key.
func cacheNamespace(ec config.EmbeddingConfig) string {
	if ec.DocumentInstruction == "" && ec.QueryInstruction == "" {
		return ec.Cache.Namespace
	}
	h := sha256.New()
	_, _ = io.WriteString(h, ec.DocumentInstruction+"\x00"+ec.QueryInstruction)
	return ec.Cache.Namespace + ":" + hex.EncodeToString(h.Sum(nil))[:12]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
