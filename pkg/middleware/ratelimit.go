package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/httputil"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client address. IPv6 clients share a
// bucket per /64, since one host usually owns the whole prefix. Buckets idle
// for longer than ttl are swept by a background loop until Close.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	// TrustProxy keys on the first X-Forwarded-For entry, or X-Real-IP.
	// Only safe behind a proxy that overwrites both headers.
	TrustProxy bool

	mu      sync.Mutex
	buckets map[string]*bucket

	logger   *slog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter allows rps sustained requests and burst back-to-back ones
// per client.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		ttl:     3 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Handler rejects requests from an exhausted bucket with 429 RATE_LIMITED and
// a Retry-After of whole seconds until the next token.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.clientIP(r)
		wait, ok := rl.take(key)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		if rl.logger != nil {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
				slog.Duration("retry_in", wait),
			)
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		httputil.WriteError(w, r, apperrors.RateLimited("too many requests"), rl.logger)
	})
}

// take consumes a token for key. When none is available it reports how long
// until one would be, without consuming anything.
func (rl *RateLimiter) take(key string) (time.Duration, bool) {
	lim := rl.visitor(key)
	now := rl.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64), false
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

func retryAfterSeconds(wait time.Duration) int {
	if wait <= 0 {
		return 1
	}
	return int(min(math.Ceil(wait.Seconds()), 3600))
}

func (rl *RateLimiter) visitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b.limiter
}

func (rl *RateLimiter) sweepLoop() {
	t := time.NewTicker(rl.ttl)
	defer t.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-t.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.ttl)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// clientIP returns the bucket key for r.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.TrustProxy {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
			if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
				return bucketKey(addr.Unmap())
			}
		}
	}
	if addr, ok := remoteAddr(r); ok {
		return bucketKey(addr)
	}
	return r.RemoteAddr
}

func bucketKey(addr netip.Addr) string {
	if addr.Is6() {
		prefix, _ := addr.Prefix(64)
		return prefix.String()
	}
	return addr.String()
}
