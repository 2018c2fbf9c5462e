package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// startupRetry governs how long a process waits for its backing stores to
// come up. Three attempts spaced 1s, 2s (each +/-25%) cover a database
// container that starts alongside the service.
var startupRetry = retryPolicy{attempts: 3, base: time.Second, jitter: 0.25}

type retryPolicy struct {
	attempts int
	base     time.Duration
	jitter   float64
}

// delay returns the pause after the given failed attempt, counted from 1.
func (p retryPolicy) delay(failed int) time.Duration {
	d := p.base << max(failed-1, 0)
	if p.jitter == 0 {
		return d
	}
	spread := float64(d) * p.jitter
	return d + time.Duration(spread*(2*rand.Float64()-1)) // #nosec G404 -- jitter only
}

// run calls fn until it succeeds, fails with an error shouldRetry rejects, or
// the attempts run out. A nil shouldRetry retries every error.
func (p retryPolicy) run(ctx context.Context, logger *slog.Logger, what string, shouldRetry func(error) bool, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt >= p.attempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", what, attempt, err)
		}

		wait := p.delay(attempt)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed",
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()),
			)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-t.C:
		}
	}
}

// isTransient reports whether err is a connectivity failure worth retrying,
// as opposed to a statement the server rejected.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P03 is cannot_connect_now.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P03"
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
