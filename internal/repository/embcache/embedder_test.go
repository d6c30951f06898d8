package embcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/domain"
)

func TestEmbed_CacheMissThenHit(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}, tokens: 10}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	first, err := ce.Embed(ctx, []string{"red shoe"}, domain.IntentDocument, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec, ok := first.First(); !ok || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", first.Embeddings)
	}
	if first.TotalTokens != 10 {
		t.Errorf("expected TotalTokens=10, got %d", first.TotalTokens)
	}
	if ms.sets != 1 {
		t.Fatalf("expected 1 cache put, got %d", ms.sets)
	}

	second, err := ce.Embed(ctx, []string{"red shoe"}, domain.IntentDocument, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.callCount() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.callCount())
	}
	if second.TotalTokens != 0 {
		t.Errorf("expected TotalTokens=0 on cache hit, got %d", second.TotalTokens)
	}
}

func TestEmbed_KeySeparatesIntentAndDim(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1, 0}}
	ce, _ := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	if _, err := ce.Embed(ctx, []string{"shoe"}, domain.IntentDocument, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := ce.Embed(ctx, []string{"shoe"}, domain.IntentQuery, 2); err != nil {
		t.Fatal(err)
	}
	if inner.callCount() != 2 {
		t.Errorf("document and query vectors must be cached separately, calls = %d", inner.callCount())
	}

	doc := ce.cacheKey("shoe", domain.IntentDocument, 2)
	qry := ce.cacheKey("shoe", domain.IntentQuery, 2)
	wide := ce.cacheKey("shoe", domain.IntentDocument, 3072)
	if doc == qry || doc == wide {
		t.Errorf("keys collide: %s %s %s", doc, qry, wide)
	}
	if !strings.HasPrefix(doc, cacheKeyPrefix+"test-model:document:2:") {
		t.Errorf("key = %s", doc)
	}
}

func TestEmbed_CachedWrongDimIsMiss(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) {
		return vectorToCacheBytes([]float32{0.9, 0.8, 0.7}), nil
	}
	ms.setFn = func(context.Context, string, []byte) error { return nil }

	res, err := ce.Embed(context.Background(), []string{"x"}, domain.IntentQuery, 2)
	if err != nil {
		t.Fatal(err)
	}
	if inner.callCount() != 1 || len(res.Embeddings[0]) != 2 {
		t.Errorf("calls = %d, vec = %v", inner.callCount(), res.Embeddings)
	}
}

func TestEmbed_StoreErrorsDegradeToMiss(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.5}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("conn reset") }
	ms.setFn = func(context.Context, string, []byte) error { return errors.New("conn reset") }

	res, err := ce.Embed(context.Background(), []string{"x"}, domain.IntentQuery, 1)
	if err != nil {
		t.Fatalf("store errors must not fail the embedding: %v", err)
	}
	if vec, ok := res.First(); !ok || vec[0] != 0.5 {
		t.Errorf("vec = %v", res.Embeddings)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProvider}
	ce, ms := newTestCachedEmbedder(t, inner)

	_, err := ce.Embed(context.Background(), []string{"test text"}, domain.IntentDocument, 3)
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("err = %v, want ErrEmbeddingProvider", err)
	}
	if ms.sets != 0 {
		t.Error("errors must not be cached")
	}
}

func TestEmbed_EmptyInnerResultNotCached(t *testing.T) {
	inner := &mockEmbedder{result: &domain.EmbeddingResult{}}
	ce, ms := newTestCachedEmbedder(t, inner)

	res, err := ce.Embed(context.Background(), []string{"x"}, domain.IntentDocument, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.First(); ok {
		t.Error("expected empty result")
	}
	if ms.sets != 0 {
		t.Errorf("sets = %d, want 0", ms.sets)
	}
}

func TestEmbed_MixedHitsMisses(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.5}, tokens: 3}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	ms.data = map[string][]byte{
		ce.cacheKey("hit1", domain.IntentDocument, 1): vectorToCacheBytes([]float32{0.9}),
	}

	res, err := ce.Embed(ctx, []string{"miss1", "hit1", "miss2"}, domain.IntentDocument, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.Embeddings[1][0] != 0.9 {
		t.Errorf("expected cached vec for index 1, got %v", res.Embeddings[1])
	}
	if res.Embeddings[0][0] != 0.5 || res.Embeddings[2][0] != 0.5 {
		t.Errorf("expected inner vec for misses, got %v, %v", res.Embeddings[0], res.Embeddings[2])
	}
	if len(inner.texts) != 1 || len(inner.texts[0]) != 2 {
		t.Errorf("inner should see only the misses, got %v", inner.texts)
	}
	if res.TotalTokens != 6 {
		t.Errorf("expected TotalTokens=6 (2 misses * 3), got %d", res.TotalTokens)
	}
}

func TestEmbed_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}, gate: make(chan struct{})}
	ce, _ := newTestCachedEmbedder(t, inner)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ce.Embed(context.Background(), []string{"footwear"}, domain.IntentQuery, 1)
			errs <- err
		}()
	}
	// let the callers pile up on the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(inner.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if n := inner.callCount(); n < 1 || n >= callers {
		t.Errorf("inner calls = %d, want collapsed below %d", n, callers)
	}
}

func TestEmbed_CallerCancelStopsWaiting(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}, gate: make(chan struct{})}
	defer close(inner.gate)
	ce, _ := newTestCachedEmbedder(t, inner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ce.Embed(ctx, []string{"slow"}, domain.IntentQuery, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestEmbed_Empty(t *testing.T) {
	ce, _ := newTestCachedEmbedder(t, &mockEmbedder{})
	res, err := ce.Embed(context.Background(), nil, domain.IntentQuery, 1)
	if err != nil || res.Embeddings != nil {
		t.Errorf("Embed(nil) = %v, %v", res, err)
	}
}

func TestEmbed_CacheMetrics(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"intent", "result"})
	inner := &mockEmbedder{vec: []float32{1}}
	ce := New(inner, &mockKVStore{}, "", counter, zap.NewNop())
	ctx := context.Background()

	_, _ = ce.Embed(ctx, []string{"a"}, domain.IntentQuery, 1)
	_, _ = ce.Embed(ctx, []string{"a"}, domain.IntentQuery, 1)

	if v := testutil.ToFloat64(counter.WithLabelValues("query", "miss")); v != 1 {
		t.Errorf("miss = %f, want 1", v)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("query", "hit")); v != 1 {
		t.Errorf("hit = %f, want 1", v)
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for length not multiple of 4")
	}
	v, err := bytesToVector(vectorToCacheBytes([]float32{1.5, -2}))
	if err != nil || v[0] != 1.5 || v[1] != -2 {
		t.Errorf("round trip = %v, %v", v, err)
	}
}

func TestEmbed_TTLApplied(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1, 2}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ce.WithTTL(time.Hour)

	if _, err := ce.Embed(context.Background(), []string{"hat"}, domain.IntentQuery, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.ttls) != 1 {
		t.Fatalf("ttl writes = %d, want 1", len(ms.ttls))
	}
	for key, ttl := range ms.ttls {
		if ttl != time.Hour {
			t.Errorf("ttl = %v, want 1h", ttl)
		}
		if !strings.HasPrefix(key, cacheKeyPrefix+"test-model:query:2:") {
			t.Errorf("key = %q", key)
		}
	}
}
