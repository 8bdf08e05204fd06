// Package health exposes liveness and readiness probes backed by pluggable
// dependency checkers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker reports the health of one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckResult is the outcome of a single dependency check.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Status is the aggregate health report.
type Status struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckResult `json:"checks"`
}

// Handler runs registered checkers and serves probe endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewHandler() *Handler {
	return &Handler{timeout: 5 * time.Second}
}

// Register adds a dependency checker.
func (h *Handler) Register(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

func (h *Handler) run(ctx context.Context) Status {
	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	status := Status{Healthy: true, Checks: make([]CheckResult, len(checkers))}
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			result := CheckResult{
				Name:    c.Name(),
				Healthy: err == nil,
				Latency: time.Since(start).String(),
			}
			if err != nil {
				result.Error = err.Error()
			}
			status.Checks[i] = result
		}(i, c)
	}
	wg.Wait()

	for _, c := range status.Checks {
		if !c.Healthy {
			status.Healthy = false
		}
	}
	return status
}

// Health runs every checker and reports the aggregate status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.run(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Live always succeeds while the process is running.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// Ready is the readiness probe, identical in behavior to Health.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	h.Health(w, r)
}
