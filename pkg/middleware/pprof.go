package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/httputil"
)

// RegisterPprof exposes the runtime profiler under /debug/pprof/ to clients
// inside allowedCIDRs. With no CIDRs the profiler is not mounted at all.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	if len(allowedCIDRs) == 0 {
		return
	}

	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(AllowCIDRs(allowedCIDRs, logger))
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Post("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/*", pprof.Index)
	})
}

// AllowCIDRs answers 403 to any client whose address is outside cidrs.
// Entries that do not parse are logged once and ignored.
func AllowCIDRs(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := parsePrefixes(cidrs, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := remoteAddr(r)
			if ok && containsAddr(allowed, addr) {
				next.ServeHTTP(w, r)
				return
			}
			logger.WarnContext(r.Context(), "client outside allowed networks",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, apperrors.Forbidden("endpoint restricted to internal networks"), logger)
		})
	}
}

func parsePrefixes(cidrs []string, logger *slog.Logger) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			logger.Warn("ignoring malformed CIDR", slog.String("cidr", c), slog.String("error", err.Error()))
			continue
		}
		out = append(out, p.Masked())
	}
	return out
}

// remoteAddr parses r.RemoteAddr with or without a port.
func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
