// Package health serves the liveness and readiness probes. Readiness runs
// every registered dependency check in parallel under a shared deadline.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker returns nil when the dependency is usable.
type Checker func(ctx context.Context) error

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status    Status  `json:"status"`
	Critical  bool    `json:"critical"`
	LatencyMS float64 `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

type check struct {
	name     string
	fn       Checker
	critical bool
}

// Handler holds the registered checks. Registration is safe while probes are
// being served.
type Handler struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
	now     func() time.Time
}

func NewHandler() *Handler {
	return &Handler{timeout: 5 * time.Second, now: time.Now}
}

// RegisterCritical adds a check that takes the service out of rotation when
// it fails (the credential store and session registry).
func (h *Handler) RegisterCritical(name string, fn Checker) { h.add(check{name, fn, true}) }

// RegisterNonCritical adds a check whose failure only reports "degraded".
func (h *Handler) RegisterNonCritical(name string, fn Checker) { h.add(check{name, fn, false}) }

func (h *Handler) add(c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checks {
		if h.checks[i].name == c.name {
			h.checks[i] = c
			return
		}
	}
	h.checks = append(h.checks, c)
}

func (h *Handler) snapshot() []check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]check(nil), h.checks...)
}

// LivenessHandler answers 200 whenever the process can serve HTTP.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusOK, Response{Status: StatusUp, Timestamp: h.now().UTC()})
	}
}

// ReadinessHandler answers 503 if a critical check fails, otherwise 200 with
// status "up" or "degraded".
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := h.snapshot()
		results := make([]CheckResult, len(checks))

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		// Checks report through results, never through the group, so one
		// failure does not cancel the others.
		var g errgroup.Group
		for i, c := range checks {
			g.Go(func() error {
				results[i] = h.run(ctx, c)
				return nil
			})
		}
		_ = g.Wait()

		resp := Response{Status: StatusUp, Timestamp: h.now().UTC(), Checks: make(map[string]CheckResult, len(checks))}
		for i, c := range checks {
			resp.Checks[c.name] = results[i]
			resp.Status = worst(resp.Status, results[i])
		}

		code := http.StatusOK
		if resp.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		write(w, code, resp)
	}
}

func (h *Handler) run(ctx context.Context, c check) CheckResult {
	start := h.now()
	err := c.fn(ctx)
	res := CheckResult{
		Status:    StatusUp,
		Critical:  c.critical,
		LatencyMS: float64(h.now().Sub(start).Microseconds()) / 1000,
	}
	if err != nil {
		res.Status = StatusDown
		res.Error = err.Error()
	}
	return res
}

func worst(current Status, res CheckResult) Status {
	switch {
	case res.Status != StatusDown, current == StatusDown:
		return current
	case res.Critical:
		return StatusDown
	default:
		return StatusDegraded
	}
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
