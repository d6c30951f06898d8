package knnsearch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/knnsearch/internal/db/dbtest"
)

const catalog = `{"id":"1","name":"Red Runner","description":"red running shoes"}
{"id":"2","name":"Blue Cap","description":"blue cap for summer"}
{"id":"3","name":"No Description"}
{"id":"4","name":"Green Boot","description":"green boot"}
`

func newTestClient(t *testing.T, store *dbtest.Store, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithEmbedder(newKeywordEmbedder()), WithDimensions(8)}
	c, err := newClient(store, newClientConfig(append(base, opts...)))
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c
}

func TestNew_RequiresRedis(t *testing.T) {
	_, err := New(context.Background(), WithEmbedder(newKeywordEmbedder()))
	if err == nil || !strings.Contains(err.Error(), "WithRedis") {
		t.Fatalf("expected WithRedis error, got %v", err)
	}
}

func TestNewClient_RequiresEmbedder(t *testing.T) {
	_, err := newClient(dbtest.New(), newClientConfig(nil))
	if err == nil || !strings.Contains(err.Error(), "WithEmbedder") {
		t.Fatalf("expected WithEmbedder error, got %v", err)
	}
}

func TestNewClient_SchemaDimMismatch(t *testing.T) {
	_, err := newClient(dbtest.New(), newClientConfig([]Option{
		WithEmbedder(newKeywordEmbedder()),
		WithDimensions(8),
		WithSchemaFile("../../data/index-config.json"),
	}))
	if !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestIndexAndSearch(t *testing.T) {
	store := dbtest.New()
	c := newTestClient(t, store)
	ctx := context.Background()

	rep, err := c.Index(ctx, "products", strings.NewReader(catalog))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if rep.Attempted != 4 || rep.Succeeded != 3 || rep.Skipped != 1 || rep.Failed != 0 {
		t.Errorf("unexpected report %+v", rep)
	}
	if _, ok := store.Index("products"); !ok {
		t.Error("expected index to be provisioned")
	}

	hits, err := c.Search(ctx, "products", "red shoes", 3, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Name() != "Red Runner" {
		t.Errorf("expected Red Runner first, got %q", hits[0].Name())
	}
	if hits[0].Description() != "red running shoes" {
		t.Errorf("unexpected description %q", hits[0].Description())
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not sorted: %v >= %v", hits[0].Score, hits[1].Score)
	}
}

func TestIndex_AbortOnMissing(t *testing.T) {
	c := newTestClient(t, dbtest.New(), WithAbortOnMissing())

	rep, err := c.Index(context.Background(), "products", strings.NewReader(catalog))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if rep.Succeeded != 2 {
		t.Errorf("expected 2 documents before abort, got %d", rep.Succeeded)
	}
}

func TestIndexFile_Missing(t *testing.T) {
	c := newTestClient(t, dbtest.New())
	rep, err := c.IndexFile(context.Background(), "products", "does-not-exist.jsonl")
	if err == nil {
		t.Fatal("expected error")
	}
	if rep.Index != "products" {
		t.Errorf("expected index name in report, got %q", rep.Index)
	}
}

func TestSearch_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing index", func(t *testing.T) {
		c := newTestClient(t, dbtest.New())
		_, err := c.Search(ctx, "nope", "red shoes", 3, 3)
		if !errors.Is(err, ErrIndexNotFound) {
			t.Fatalf("expected ErrIndexNotFound, got %v", err)
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		c := newTestClient(t, dbtest.New())
		_, err := c.Search(ctx, "products", "  ", 3, 3)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		c := newTestClient(t, dbtest.New(), WithEmbedder(&failingEmbedder{err: errProviderDown}))
		_, err := c.Search(ctx, "products", "red shoes", 3, 3)
		if !errors.Is(err, ErrEmbeddingProvider) || !errors.Is(err, errProviderDown) {
			t.Fatalf("expected wrapped provider error, got %v", err)
		}
	})
}

func TestHealth(t *testing.T) {
	store := dbtest.New()
	c := newTestClient(t, store)
	ctx := context.Background()

	h := c.Health(ctx)
	if h.Status != "ok" || h.Checks["database"] != "ok" {
		t.Errorf("unexpected health %+v", h)
	}

	h = c.Health(ctx, "products")
	if h.Status != "degraded" || h.Checks["index:products"] != "missing" {
		t.Errorf("expected degraded with missing index, got %+v", h)
	}

	if _, err := c.Index(ctx, "products", strings.NewReader(catalog)); err != nil {
		t.Fatal(err)
	}
	h = c.Health(ctx, "products")
	if h.Status != "ok" || h.Checks["index:products"] != "ok" {
		t.Errorf("expected ok after indexing, got %+v", h)
	}
}

func TestPrometheus_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := dbtest.New()
	a := newTestClient(t, store, WithPrometheus(reg))
	b := newTestClient(t, store, WithPrometheus(reg))
	ctx := context.Background()

	if err := a.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	_, _ = a.Search(ctx, "nope", "red", 1, 1)

	if got := testutil.ToFloat64(a.obs.metrics.operations.WithLabelValues("ping", "ok")); got != 2 {
		t.Errorf("expected 2 pings across clients, got %v", got)
	}
	if got := testutil.ToFloat64(b.obs.metrics.operations.WithLabelValues("search", "error")); got != 1 {
		t.Errorf("expected 1 failed search, got %v", got)
	}
}

func TestRegisterOrReuse_IncompatibleType(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "knnsearch", Subsystem: "client", Name: "operations_total", Help: "Client operations by type and status.",
	}, []string{"operation", "status"})
	reg.MustRegister(gauge)

	if _, err := newClientMetrics(reg); err == nil {
		t.Fatal("expected incompatible type error")
	}
}

func TestIndex_MaxFailures(t *testing.T) {
	c := newTestClient(t, dbtest.New(), WithMaxFailures(1))
	input := "not json\n{also not json\n" + catalog

	rep, err := c.Index(context.Background(), "products", strings.NewReader(input))
	if !errors.Is(err, ErrTooManyFailures) {
		t.Fatalf("expected ErrTooManyFailures, got %v", err)
	}
	if rep.Failed != 2 || len(rep.Errors) != 2 || rep.Errors[0].Line != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
	if !errors.Is(rep.Errors[0].Err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", rep.Errors[0].Err)
	}
}
