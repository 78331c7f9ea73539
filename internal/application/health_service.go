package application

import (
	"context"

	"github.com/alorle/guide-resolver/internal/metrics"
	"github.com/alorle/guide-resolver/internal/port/driven"
)

// HealthService checks the dependencies the resolver needs to stay useful.
// Upstream guide availability is not checked.
type HealthService struct {
	store driven.CacheStore
}

// NewHealthService creates a health service. store may be nil when the cache
// is memory-only.
func NewHealthService(store driven.CacheStore) *HealthService {
	return &HealthService{store: store}
}

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status string // "ok", "error" or "disabled"
	Error  string // empty unless Status is "error"
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status     string // "ok" if all components are healthy, "degraded" otherwise
	CacheStore ComponentHealth
}

// Check performs health checks on all dependencies.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "ok",
		CacheStore: ComponentHealth{Status: "disabled"},
	}

	if s.store == nil {
		return status
	}

	if err := s.store.Ping(ctx); err != nil {
		metrics.RecordHealthCheckFailure()
		status.CacheStore = ComponentHealth{Status: "error", Error: err.Error()}
		status.Status = "degraded"
		return status
	}

	status.CacheStore = ComponentHealth{Status: "ok"}
	return status
}
