package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig controls when the breaker opens and how it recovers.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// HalfOpenProbes is how many requests may test the server while
	// half-open.
	HalfOpenProbes uint32

	// Window clears the failure counts periodically while closed. Zero keeps
	// them until the state changes.
	Window time.Duration

	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration

	// MinRequests and FailureRatio decide when a closed breaker trips.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerConfig returns a breaker that opens when half of at
// least five requests in a minute fail.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:           name,
		HalfOpenProbes: 1,
		Window:         time.Minute,
		Cooldown:       15 * time.Second,
		MinRequests:    5,
		FailureRatio:   0.5,
	}
}

// ErrCircuitOpen is returned without contacting the server while open.
var ErrCircuitOpen = gobreaker.ErrOpenState

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_client_circuit_state",
		Help: "Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.",
	}, []string{"name"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_client_circuit_rejected_total",
		Help: "Requests refused locally because the circuit was open.",
	}, []string{"name"})
)

// errUpstream marks a 5xx as a breaker failure while the response itself is
// still handed to the caller.
var errUpstream = errors.New("upstream error status")

// CircuitBreakerClient fails fast while an upstream is unhealthy.
type CircuitBreakerClient struct {
	next    Doer
	name    string
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

// NewCircuitBreakerClient wraps next in a breaker built from cfg.
func NewCircuitBreakerClient(next Doer, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.Default()
	}

	breakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))

	return &CircuitBreakerClient{
		next:   next,
		name:   cfg.Name,
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenProbes,
			Interval:    cfg.Window,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.Requests >= cfg.MinRequests &&
					float64(c.TotalFailures) >= cfg.FailureRatio*float64(c.Requests)
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker changed state",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
				breakerState.WithLabelValues(name).Set(stateValue(to))
			},
		}),
	}
}

// Do sends req through the breaker. Transport errors and 5xx responses count
// as failures, but a 5xx response is returned to the caller with a nil error.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.next.Do(ctx, req)
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("%w %d", errUpstream, resp.StatusCode)
		}
		return resp, err
	})

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errUpstream) && resp != nil:
		return resp, nil
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, gobreaker.ErrTooManyRequests):
		breakerRejected.WithLabelValues(c.name).Inc()
		return nil, fmt.Errorf("%s: %w", c.name, err)
	default:
		return nil, err
	}
}

// State returns the breaker's current state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
