package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
)

const cacheKeyPrefix = "knnsearch:emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder caches embeddings in a key-value store.
// Entries are keyed by namespace (model), intent, dimensionality and text.
// Concurrent identical misses share one inner call.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	namespace  string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	ttl        time.Duration
	group      singleflight.Group
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "intent" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	namespace string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		namespace:  namespace,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// WithTTL makes cached entries expire after d; zero keeps them forever.
func (c *CachedEmbedder) WithTTL(d time.Duration) *CachedEmbedder {
	c.ttl = d
	return c
}

// Embed returns cached vectors and asks the inner embedder only for misses.
// Cache hits consume no tokens. If the inner embedder returns no vectors for the
// misses, the whole result is empty and nothing is cached.
func (c *CachedEmbedder) Embed(
	ctx context.Context, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{}, nil
	}

	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	for i, t := range texts {
		keys[i] = c.cacheKey(t, intent, dim)
		if vec, ok := c.getFromCache(ctx, keys[i], dim); ok {
			c.incCache(intent, "hit")
			vectors[i] = vec
			continue
		}
		c.incCache(intent, "miss")
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return domain.EmbeddingResult{Embeddings: vectors}, nil
	}

	missTexts := make([]string, len(missIdx))
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
		missKeys[j] = keys[i]
	}

	result, err := c.embedShared(ctx, strings.Join(missKeys, ","), missTexts, intent, dim)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return domain.EmbeddingResult{}, nil
	}
	if len(result.Embeddings) != len(missIdx) {
		return domain.EmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(missIdx), len(result.Embeddings), domain.ErrEmbeddingProvider)
	}

	for j, i := range missIdx {
		vec := result.Embeddings[j]
		vectors[i] = vec
		if len(vec) > 0 {
			c.putToCache(ctx, keys[i], vec)
		}
	}
	return domain.EmbeddingResult{
		Embeddings:   vectors,
		PromptTokens: result.PromptTokens,
		TotalTokens:  result.TotalTokens,
	}, nil
}

// embedShared collapses identical in-flight requests. The shared call is detached
// from the first caller's cancellation; each caller still stops waiting on its own ctx.
func (c *CachedEmbedder) embedShared(
	ctx context.Context, key string, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return c.inner.Embed(context.WithoutCancel(ctx), texts, intent, dim)
	})
	select {
	case <-ctx.Done():
		return domain.EmbeddingResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.EmbeddingResult{}, res.Err
		}
		return res.Val.(domain.EmbeddingResult), nil
	}
}

func (c *CachedEmbedder) incCache(intent domain.TaskIntent, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(intent.String(), result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string, intent domain.TaskIntent, dim int) string {
	h := sha256.Sum256([]byte(text))
	var b strings.Builder
	b.WriteString(cacheKeyPrefix)
	if c.namespace != "" {
		b.WriteString(c.namespace)
		b.WriteByte(':')
	}
	b.WriteString(intent.String())
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(dim))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(h[:]))
	return b.String()
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string, dim int) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if dim > 0 && len(vec) != dim {
		c.logger.Warn("Cached embedding has wrong dimension",
			zap.String("key", key), zap.Int("want", dim), zap.Int("got", len(vec)))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, vectorToCacheBytes(vec), c.ttl)
	} else {
		err = c.store.Set(ctx, key, vectorToCacheBytes(vec))
	}
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
