package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means the store answers but search cannot fully work.
	Degraded Status = "degraded"
	// Unhealthy means the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckMissing indicates the served index has not been provisioned.
	CheckMissing CheckResult = "missing"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	indexes   IndexChecker
	index     string
	timeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithIndex adds a check that the named index exists.
func WithIndex(checker IndexChecker, name string) Option {
	return func(s *Service) {
		s.indexes = checker
		s.index = name
	}
}

// WithTimeout bounds each individual check.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker, opts ...Option) *Service {
	s := &Service{db: db, embedding: embedding}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	dbOK := s.run(ctx, s.db.Ping) == nil
	checks["database"] = result(dbOK)

	if s.embedding != nil {
		checks["embedding"] = result(s.run(ctx, s.embedding.HealthCheck) == nil)
	}

	if s.indexes != nil && s.index != "" {
		var exists bool
		err := s.run(ctx, func(ctx context.Context) error {
			var err error
			exists, err = s.indexes.IndexExists(ctx, s.index)
			return err
		})
		switch {
		case err != nil:
			checks["index"] = CheckError
		case !exists:
			checks["index"] = CheckMissing
		default:
			checks["index"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}
	if !dbOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, check func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return check(ctx)
}

func result(ok bool) CheckResult {
	if ok {
		return CheckOK
	}
	return CheckError
}
