// Package dbtest provides an in-process db.Store for tests.
//
// KNN is exhaustive and mirrors the FT.SEARCH contract used by the redis driver:
// only documents under the index prefix whose vector matches the declared DIM
// are candidates; results are sorted by ascending distance and capped by K and Limit.
package dbtest

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/knnsearch/internal/db"
)

var _ db.Store = (*Store)(nil)

// Store keeps indexes and documents in memory. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	indexes map[string]*db.IndexDefinition
	docs    map[string][]byte
	kv      map[string][]byte

	// Writes records JSON.SET keys in call order.
	Writes []string
	// CreateCalls counts successful FT.CREATE calls.
	CreateCalls int
	// SearchCalls counts SearchKNN calls that reached the store.
	SearchCalls int

	// Fault hooks; nil means success.
	ExistsErr error
	CreateErr error
	SetErr    func(key string) error
	SearchErr error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		indexes: make(map[string]*db.IndexDefinition),
		docs:    make(map[string][]byte),
		kv:      make(map[string][]byte),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady always succeeds.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// JSONSet stores a document. Only the root path is supported.
func (s *Store) JSONSet(_ context.Context, key, _ string, data []byte) error {
	if s.SetErr != nil {
		if err := s.SetErr(key); err != nil {
			return &db.Error{Op: db.OpJSONSet, Err: err}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), data...)
	s.Writes = append(s.Writes, key)
	return nil
}

// JSONGet returns a stored document.
func (s *Store) JSONGet(_ context.Context, key string, _ ...string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

// Del removes a document or key-value entry.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	delete(s.kv, key)
	return nil
}

// Get returns a key-value entry.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

// Set stores a key-value entry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = append([]byte(nil), value...)
	return nil
}

// SetWithTTL stores a key-value entry; expiry is ignored.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, _ time.Duration) error {
	return s.Set(ctx, key, value)
}

// CreateIndex registers an index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	s.indexes[def.Name] = def
	s.CreateCalls++
	return nil
}

// DropIndex removes an index definition; documents are kept.
func (s *Store) DropIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(s.indexes, name)
	return nil
}

// IndexExists reports whether an index is registered.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// IndexDocCount counts documents under the index prefixes.
func (s *Store) IndexDocCount(_ context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.indexes[name]
	if !ok {
		return 0, db.ErrIndexNotFound
	}
	n := 0
	for key := range s.docs {
		if hasPrefix(key, def.Prefixes) {
			n++
		}
	}
	return n, nil
}

// Index returns the registered definition, if any.
func (s *Store) Index(name string) (*db.IndexDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.indexes[name]
	return def, ok
}

// Doc decodes a stored document.
func (s *Store) Doc(key string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, false
	}
	var m map[string]any
	if json.Unmarshal(data, &m) != nil {
		return nil, false
	}
	return m, true
}

// SearchKNN ranks documents of the index by distance to the query vector.
func (s *Store) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls++
	if s.SearchErr != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: s.SearchErr}
	}

	def, ok := s.indexes[q.IndexName]
	if !ok {
		return nil, db.ErrIndexNotFound
	}
	field, ok := def.VectorField(q.VectorField)
	if !ok {
		return nil, &db.Error{Op: db.OpSearch, Err: errUnknownField(q.VectorField)}
	}

	if len(q.Vector) != field.VectorDim {
		return nil, &db.Error{Op: db.OpSearch, Err: errDim(len(q.Vector))}
	}

	type candidate struct {
		key  string
		dist float64
	}
	var cands []candidate
	for key, data := range s.docs {
		if !hasPrefix(key, def.Prefixes) {
			continue
		}
		vec, ok := extractVector(data, q.VectorField)
		if !ok || len(vec) != field.VectorDim {
			continue
		}
		cands = append(cands, candidate{key: key, dist: distance(field.VectorDistance, q.Vector, vec)})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist == cands[j].dist {
			return cands[i].key < cands[j].key
		}
		return cands[i].dist < cands[j].dist
	})
	if len(cands) > q.K {
		cands = cands[:q.K]
	}
	limit := q.Limit
	if limit <= 0 || limit > len(cands) {
		limit = len(cands)
	}

	out := &db.SearchResult{Total: len(cands)}
	for _, c := range cands[:limit] {
		out.Entries = append(out.Entries, db.SearchEntry{
			Key:    c.key,
			Score:  db.ScoreFromDistance(field.VectorDistance, c.dist),
			Fields: map[string]string{"$": string(s.docs[c.key])},
		})
	}
	return out, nil
}

type errUnknownField string

func (e errUnknownField) Error() string { return "unknown vector field " + string(e) }

type errDim int

func (e errDim) Error() string { return "query vector has wrong dimension " + strconv.Itoa(int(e)) }

func hasPrefix(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func extractVector(data []byte, field string) ([]float32, bool) {
	var doc map[string]json.RawMessage
	if json.Unmarshal(data, &doc) != nil {
		return nil, false
	}
	raw, ok := doc[field]
	if !ok {
		return nil, false
	}
	var vec []float32
	if json.Unmarshal(raw, &vec) != nil {
		return nil, false
	}
	return vec, true
}

func distance(metric db.DistanceMetric, a, b []float32) float64 {
	switch metric {
	case db.DistanceL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return sum
	case db.DistanceIP:
		return 1 - dot(a, b)
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot(a, b)/(na*nb)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
