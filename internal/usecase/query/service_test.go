package query

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/embedtest"
	"github.com/kailas-cloud/knnsearch/internal/retry"
)

const dim = 8

// --- Mocks ---

type mockSearcher struct {
	result *db.SearchResult
	errs   []error // the last queued error sticks
	calls  int
	last   *db.KNNQuery
}

func (m *mockSearcher) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.calls++
	m.last = q
	if len(m.errs) > 0 {
		err := m.errs[0]
		if len(m.errs) > 1 {
			m.errs = m.errs[1:]
		}
		return nil, err
	}
	return m.result, nil
}

func newService(s Searcher, emb domain.Embedder) *Service {
	return New(s, emb, Options{
		Dim:   dim,
		Retry: retry.Policy{Attempts: 3, Base: time.Millisecond, MaxDelay: time.Millisecond},
	}, zap.NewNop())
}

// --- Tests ---

func TestSearch_BuildsKNNQuery(t *testing.T) {
	s := &mockSearcher{result: &db.SearchResult{}}
	emb := embedtest.NewCatalog()

	if _, err := newService(s, emb).Search(context.Background(), "products", "footwear", 3, 2); err != nil {
		t.Fatalf("Search: %v", err)
	}
	q := s.last
	if q.IndexName != "products" || q.VectorField != domain.VectorField || q.K != 3 || q.Limit != 2 {
		t.Errorf("query = %+v", q)
	}
	if len(q.Vector) != dim || q.Distance != db.DistanceCosine {
		t.Errorf("vector len = %d, metric = %q", len(q.Vector), q.Distance)
	}
	calls := emb.Calls()
	if len(calls) != 1 || calls[0].Intent != domain.IntentQuery || calls[0].Dim != dim {
		t.Errorf("embed calls = %+v", calls)
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		index string
		text  string
		k     int
		size  int
	}{
		{"empty text", "products", "", 3, 3},
		{"blank text", "products", "   ", 3, 3},
		{"no index", "", "shoe", 3, 3},
		{"zero k", "products", "shoe", 0, 1},
		{"zero size", "products", "shoe", 3, 0},
		{"k below size", "products", "shoe", 3, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &mockSearcher{}
			emb := embedtest.NewCatalog()
			_, err := newService(s, emb).Search(context.Background(), tc.index, tc.text, tc.k, tc.size)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Fatalf("err = %v, want ErrInvalidQuery", err)
			}
			if len(emb.Calls()) != 0 || s.calls != 0 {
				t.Error("invalid queries must not reach the provider or the store")
			}
		})
	}
}

func TestSearch_EmbeddingUnavailable(t *testing.T) {
	s := &mockSearcher{}
	emb := embedtest.NewCatalog()
	emb.Empty = map[string]bool{"???": true}

	_, err := newService(s, emb).Search(context.Background(), "products", "???", 3, 3)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
	if s.calls != 0 {
		t.Error("store must not be called without a vector")
	}
}

type errEmbedder struct{}

func (errEmbedder) Embed(context.Context, []string, domain.TaskIntent, int) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, domain.ErrEmbeddingProvider
}

func TestSearch_EmbeddingError(t *testing.T) {
	_, err := newService(&mockSearcher{}, errEmbedder{}).Search(context.Background(), "products", "shoe", 3, 3)
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("err = %v, want ErrEmbeddingProvider", err)
	}
}

func TestSearch_DimMismatchNeverReachesStore(t *testing.T) {
	s := &mockSearcher{}
	emb := embedtest.NewCatalog()
	emb.Dim = dim + 1

	_, err := newService(s, emb).Search(context.Background(), "products", "shoe", 3, 3)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("err = %v, want ErrVectorDimMismatch", err)
	}
	if s.calls != 0 {
		t.Errorf("store calls = %d, want 0", s.calls)
	}
}

func TestSearch_BackendErrorRetried(t *testing.T) {
	s := &mockSearcher{errs: []error{errors.New("LOADING")}}
	_, err := newService(s, embedtest.NewCatalog()).Search(context.Background(), "products", "shoe", 3, 3)
	if !errors.Is(err, domain.ErrSearchBackend) {
		t.Fatalf("err = %v, want ErrSearchBackend", err)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestSearch_BackendRecovers(t *testing.T) {
	s := &flakySearcher{fails: 1}
	if _, err := newService(s, embedtest.NewCatalog()).Search(context.Background(), "products", "shoe", 3, 3); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if s.calls != 2 {
		t.Errorf("calls = %d, want 2", s.calls)
	}
}

// flakySearcher fails the first n calls.
type flakySearcher struct {
	fails int
	calls int
}

func (f *flakySearcher) SearchKNN(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("LOADING Redis is loading the dataset in memory")
	}
	return &db.SearchResult{}, nil
}

func TestSearch_UnknownIndexNotRetried(t *testing.T) {
	s := &mockSearcher{errs: []error{db.ErrIndexNotFound}}
	_, err := newService(s, embedtest.NewCatalog()).Search(context.Background(), "missing", "shoe", 3, 3)
	if !errors.Is(err, domain.ErrSearchBackend) || !errors.Is(err, db.ErrIndexNotFound) {
		t.Fatalf("err = %v, want ErrSearchBackend wrapping ErrIndexNotFound", err)
	}
	if s.calls != 1 {
		t.Errorf("calls = %d, want 1", s.calls)
	}
}

func TestSearch_MapsEntriesToHits(t *testing.T) {
	s := &mockSearcher{result: &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
		{Key: "products:2", Score: 0.5, Fields: map[string]string{"$": `{"name":"Blue Shoe","description_vector":[1,0]}`}},
		{Key: "products:1", Score: 0.9, Fields: map[string]string{"$": `{"name":"Red Shoe"}`}},
		{Key: "products:3", Score: 0.1, Fields: map[string]string{"name": "Green Hat"}},
	}}}

	res, err := newService(s, embedtest.NewCatalog()).Search(context.Background(), "products", "shoe", 3, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Len() != 3 {
		t.Fatalf("hits = %d, want 3", res.Len())
	}
	ids := []string{res.Hits[0].ID, res.Hits[1].ID, res.Hits[2].ID}
	if !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Errorf("order = %v, want descending score", ids)
	}
	if res.Hits[1].Fields.StringField("name") != "Blue Shoe" {
		t.Errorf("fields = %v", res.Hits[1].Fields)
	}
	if res.Hits[1].Fields.HasVector() {
		t.Error("vector must not be returned")
	}
	if res.Hits[2].Fields.StringField("name") != "Green Hat" {
		t.Errorf("flat fields = %v", res.Hits[2].Fields)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	s := &mockSearcher{result: &db.SearchResult{Entries: []db.SearchEntry{
		{Key: "products:1", Score: 0.7, Fields: map[string]string{"$": `{"name":"a"}`}},
		{Key: "products:2", Score: 0.7, Fields: map[string]string{"$": `{"name":"b"}`}},
	}}}
	svc := newService(s, embedtest.NewCatalog())

	first, err := svc.Search(context.Background(), "products", "shoe", 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Search(context.Background(), "products", "shoe", 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if first.Hits[0].ID != "1" {
		t.Errorf("ties must keep backend order, got %v", first.Hits)
	}
}
