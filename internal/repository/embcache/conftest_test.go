package embcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// mockEmbedder returns vec for every text unless result or err is set.
type mockEmbedder struct {
	mu      sync.Mutex
	vec     []float32
	result  *domain.EmbeddingResult
	err     error
	tokens  int
	calls   int
	texts   [][]string
	intents []domain.TaskIntent
	// gate, when set, blocks Embed until closed.
	gate chan struct{}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string, intent domain.TaskIntent, _ int) (domain.EmbeddingResult, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, texts)
	m.intents = append(m.intents, intent)
	m.mu.Unlock()

	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if m.result != nil {
		return *m.result, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vec
	}
	return domain.EmbeddingResult{
		Embeddings:   out,
		PromptTokens: m.tokens * len(texts),
		TotalTokens:  m.tokens * len(texts),
	}, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockKVStore implements the consumer interface with an in-memory map and optional hooks.
type mockKVStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
	sets  int
	ttls  map[string]time.Duration
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.Set(ctx, key, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttls == nil {
		m.ttls = make(map[string]time.Duration)
	}
	m.ttls[key] = ttl
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	ce := New(inner, ms, "test-model", nil, zap.NewNop())
	return ce, ms
}
