package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig describes which browser origins may call the API. With
// AllowCredentials set, a "*" origin is ignored: browsers refuse a wildcard
// on credentialed responses, and the refresh cookie needs credentials.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string // default GET, POST, PUT, DELETE, OPTIONS
	AllowedHeaders   []string // default Accept, Authorization, Content-Type, X-Correlation-ID
	ExposedHeaders   []string
	MaxAge           int // preflight cache seconds, default 600
	AllowCredentials bool
}

// DefaultCORSConfig suits the web client: credentialed requests from the
// listed origins, with the correlation id readable by scripts.
func DefaultCORSConfig(origins ...string) CORSConfig {
	return CORSConfig{
		AllowedOrigins:   origins,
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
	}
}

type corsPolicy struct {
	origins     map[string]bool
	wildcard    bool
	credentials bool

	methods, headers, exposed, maxAge string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     joinOr(cfg.AllowedMethods, "GET, POST, PUT, DELETE, OPTIONS"),
		headers:     joinOr(cfg.AllowedHeaders, "Accept, Authorization, Content-Type, X-Correlation-ID"),
		exposed:     strings.Join(cfg.ExposedHeaders, ", "),
		maxAge:      "600",
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	for _, o := range cfg.AllowedOrigins {
		switch o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o {
		case "":
		case "*":
			p.wildcard = !cfg.AllowCredentials
		default:
			p.origins[o] = true
		}
	}
	return p
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.origins[origin]:
		return origin
	case p.wildcard:
		return "*"
	default:
		return ""
	}
}

// CORS answers preflight requests itself and decorates every other
// cross-origin response. Disallowed origins get no CORS headers, which makes
// the browser block the response.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if allowed := p.allowOrigin(origin); allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if p.credentials && allowed != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if p.exposed != "" {
				h.Set("Access-Control-Expose-Headers", p.exposed)
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", p.methods)
			h.Set("Access-Control-Allow-Headers", p.headers)
			h.Set("Access-Control-Max-Age", p.maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
