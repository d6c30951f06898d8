package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockIndexChecker struct {
	exists bool
	err    error
	asked  string
}

func (m *mockIndexChecker) IndexExists(_ context.Context, name string) (bool, error) {
	m.asked = name
	return m.exists, m.err
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	idx := &mockIndexChecker{exists: true}
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{}, WithIndex(idx, "products"))
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"database", "embedding", "index"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
	if idx.asked != "products" {
		t.Errorf("index checked = %q", idx.asked)
	}
}

func TestCheck_DBErrorIsUnhealthy(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, &mockEmbeddingChecker{})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_EmbeddingErrorIsDegraded(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
}

func TestCheck_Index(t *testing.T) {
	tests := []struct {
		name  string
		idx   *mockIndexChecker
		check CheckResult
	}{
		{"missing", &mockIndexChecker{}, CheckMissing},
		{"error", &mockIndexChecker{err: errors.New("boom")}, CheckError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&mockDBPinger{}, nil, WithIndex(tt.idx, "products")).Check(context.Background())
			if r.Checks["index"] != tt.check {
				t.Errorf("index = %q, want %q", r.Checks["index"], tt.check)
			}
			if r.Status != Degraded {
				t.Errorf("status = %q, want %q", r.Status, Degraded)
			}
		})
	}
}

func TestCheck_NoEmbedding(t *testing.T) {
	svc := New(&mockDBPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("embedding check should be absent when embedding is nil")
	}
	if _, ok := r.Checks["index"]; ok {
		t.Error("index check should be absent when no index is configured")
	}
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheck_Timeout(t *testing.T) {
	svc := New(slowPinger{}, nil, WithTimeout(10*time.Millisecond))

	done := make(chan Report, 1)
	go func() { done <- svc.Check(context.Background()) }()

	select {
	case r := <-done:
		if r.Status != Unhealthy {
			t.Errorf("status = %q, want %q", r.Status, Unhealthy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Check did not honor the timeout")
	}
}
