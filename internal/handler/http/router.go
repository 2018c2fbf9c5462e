package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mukulsharnagat01/Collegedunia/internal/auth"
	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/service"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/health"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	ServiceName string
	BasePath    string

	AuthService *service.AuthService
	Tokens      *auth.TokenIssuer
	Health      *health.Handler
	Logger      *slog.Logger

	CORS    middleware.CORSConfig
	Cookies CookieConfig

	// RateLimiter guards the credential endpoints. Nil disables limiting.
	RateLimiter *middleware.RateLimiter

	// PprofAllowedCIDRs enables /debug/pprof for the listed networks.
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	base := strings.TrimRight(cfg.BasePath, "/")
	logger := cfg.Logger

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	// Token validator that bridges the access token issuer to middleware.Claims.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := cfg.Tokens.ParseAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.Subject,
			Email:  claims.Email,
			Name:   claims.Name,
			Role:   claims.Role,
		}, nil
	}

	authHandler := NewAuthHandler(cfg.AuthService, cfg.Cookies, logger)
	adminHandler := NewAdminHandler(cfg.AuthService, logger)

	r.Route(base+"/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)

		// Public credential endpoints
		r.Group(func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.Handler)
			}
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})
		r.Post("/logout", authHandler.Logout)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))

			r.Get("/me", authHandler.Me)
			r.Put("/me", authHandler.UpdateMe)
			r.Post("/change-password", authHandler.ChangePassword)
		})
	})

	// Admin back office
	r.Route(base+"/admin/users/{id}", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Get("/", adminHandler.GetUser)
		r.Put("/role", adminHandler.SetRole)
		r.Post("/sessions/revoke", adminHandler.RevokeSessions)
	})

	return r
}
