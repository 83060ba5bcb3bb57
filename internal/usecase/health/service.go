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
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates a required component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

type check struct {
	name     string
	required bool
	fn       func(ctx context.Context) error
}

// Service coordinates health checks.
type Service struct {
	checks  []check
	timeout time.Duration
}

// New creates a Service whose required check is the vector store.
func New(vectors Pinger) *Service {
	s := &Service{timeout: DefaultCheckTimeout}
	return s.withCheck("vector_store", true, vectors.Ping)
}

// WithGraph adds the graph store as a required check.
func (s *Service) WithGraph(graph Pinger) *Service {
	if graph == nil {
		return s
	}
	return s.withCheck("graph_store", true, graph.Ping)
}

// WithEmbedding adds the embedding provider as an optional check.
func (s *Service) WithEmbedding(embedding EmbeddingChecker) *Service {
	if embedding == nil {
		return s
	}
	return s.withCheck("embedding", false, embedding.HealthCheck)
}

// WithCache adds the embedding cache as an optional check.
func (s *Service) WithCache(cache Pinger) *Service {
	if cache == nil {
		return s
	}
	return s.withCheck("embedding_cache", false, cache.Ping)
}

func (s *Service) withCheck(name string, required bool, fn func(ctx context.Context) error) *Service {
	s.checks = append(s.checks, check{name: name, required: required, fn: fn})
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks))
	status := Healthy

	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.fn(cctx)
		cancel()

		if err == nil {
			checks[c.name] = CheckOK
			continue
		}
		checks[c.name] = CheckError
		switch {
		case c.required:
			status = Unhealthy
		case status == Healthy:
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}
