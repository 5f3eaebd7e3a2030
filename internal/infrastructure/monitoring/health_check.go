package monitoring

import (
	"context"
	"sync"
	"time"
)

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

type CheckResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthChecker aggregates named dependency probes for the health endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]CheckFunc),
	}
}

func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every registered probe and reports per-dependency results.
// The second return value is false if any probe failed.
func (h *HealthChecker) Check(ctx context.Context) (map[string]CheckResult, bool) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	healthy := true
	for name, fn := range checks {
		start := time.Now()
		err := fn(ctx)
		result := CheckResult{
			Status:  "ok",
			Latency: time.Since(start).String(),
		}
		if err != nil {
			result.Status = "failing"
			result.Error = err.Error()
			healthy = false
		}
		results[name] = result
	}
	return results, healthy
}
