package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Mukulsharnagat01/Collegedunia/internal/auth"
	"github.com/Mukulsharnagat01/Collegedunia/internal/config"
	"github.com/Mukulsharnagat01/Collegedunia/internal/event"
	handler "github.com/Mukulsharnagat01/Collegedunia/internal/handler/http"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository"
	"github.com/Mukulsharnagat01/Collegedunia/internal/service"
	"github.com/Mukulsharnagat01/Collegedunia/migrations"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/health"
	pkgkafka "github.com/Mukulsharnagat01/Collegedunia/pkg/kafka"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/middleware"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/tracing"
)

const releaseTimeout = 5 * time.Second

type release struct {
	component string
	fn        func(context.Context) error
}

// App owns the auth service's backends and HTTP server.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	sqliteDB *sql.DB
	redis    *goredis.Client
	producer *pkgkafka.Producer

	pruner     pruneFunc
	httpServer *http.Server
	releases   []release
}

// NewApp connects the configured stores and builds the router. On error,
// whatever was already opened is released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.release()
		}
	}()

	shutdownTracer, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.onRelease("tracer", shutdownTracer)

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	healthHandler := health.NewHandler()

	st, err := a.openStores(ctx, healthHandler)
	if err != nil {
		return nil, err
	}
	a.pruner = st.prune

	// Kafka is optional; without brokers events are not published.
	var publisher event.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.onRelease("kafka", func(context.Context) error { return a.producer.Close() })
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka publishing enabled", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, domain events will not be published")
	}

	tokens, err := auth.NewTokenIssuer(auth.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessExpiry:  cfg.JWTAccessExpiry,
		RefreshExpiry: cfg.JWTRefreshExpiry,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	authService, err := service.NewAuthService(st.users, st.sessions, tokens, event.NewProducer(publisher), logger, service.Options{
		BcryptCost:          cfg.BcryptCost,
		RotateRefreshTokens: cfg.RotateRefreshTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	if err := a.bootstrapAdmin(ctx, authService); err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst, logger)
	limiter.TrustProxy = cfg.TrustProxy
	a.onRelease("rate limiter", func(context.Context) error {
		limiter.Close()
		return nil
	})

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		BasePath:    cfg.BasePath,
		AuthService: authService,
		Tokens:      tokens,
		Health:      healthHandler,
		Logger:      logger,
		CORS:        middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins...),
		Cookies: handler.CookieConfig{
			Path:     cfg.CookiePath(),
			Domain:   cfg.CookieDomain,
			Secure:   cfg.SecureCookies(),
			SameSite: cfg.SameSite(),
			MaxAge:   authService.RefreshTTL(),
		},
		RateLimiter:       limiter,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return a, nil
}

// stores is the selected credential store and session registry.
type stores struct {
	users    repository.UserRepository
	sessions repository.SessionRegistry
	prune    pruneFunc
}

// openStores connects the backends named by USER_STORE and SESSION_STORE,
// runs migrations and registers readiness checks.
func (a *App) openStores(ctx context.Context, healthHandler *health.Handler) (*stores, error) {
	cfg, logger := a.cfg, a.logger

	if cfg.NeedsPostgres() {
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.onRelease("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		logger.Info("postgres pool ready", slog.String("db", cfg.PostgresDB), slog.Int("port", cfg.PostgresPort))
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, cfg.ServiceName); err != nil {
			logger.Warn("pool metrics not registered", slog.Any("error", err))
		}
		if err := database.RunMigrations(ctx, pool, migrations.Postgres(), logger); err != nil {
			return nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		healthHandler.RegisterCritical("postgres", pool.Ping)
	}

	if cfg.NeedsSQLite() {
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.sqliteDB = db
		a.onRelease("sqlite", func(context.Context) error { return db.Close() })
		logger.Info("sqlite database ready", slog.String("path", cfg.SQLitePath))
		if err := database.RunSQLMigrations(ctx, db, migrations.SQLite(), logger); err != nil {
			return nil, fmt.Errorf("run sqlite migrations: %w", err)
		}
		healthHandler.RegisterCritical("sqlite", db.PingContext)
	}

	if cfg.SessionStore == config.StoreRedis {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		a.onRelease("redis", func(context.Context) error { return client.Close() })
		logger.Info("redis client ready", slog.String("addr", cfg.Redis().Addr()))
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	st := &stores{}
	st.users = selectUserStore(cfg.UserStore, a.pool, a.sqliteDB)
	st.sessions, st.prune = selectSessionStore(cfg.SessionStore, a.pool, a.sqliteDB, a.redis)
	logger.Info("stores selected",
		slog.String("user_store", cfg.UserStore),
		slog.String("session_store", cfg.SessionStore),
	)
	return st, nil
}

// bootstrapAdmin creates or promotes the configured admin account.
func (a *App) bootstrapAdmin(ctx context.Context, svc *service.AuthService) error {
	if a.cfg.BootstrapAdminEmail == "" {
		return nil
	}
	user, created, err := svc.EnsureAdmin(ctx, service.BootstrapAdminInput{
		Name:     a.cfg.BootstrapAdminName,
		Email:    a.cfg.BootstrapAdminEmail,
		Password: a.cfg.BootstrapAdminPassword,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	a.logger.Info("bootstrap admin ready",
		slog.String("user_id", user.ID),
		slog.Bool("created", created),
	)
	return nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run serves HTTP and prunes sessions until ctx is canceled or the listener
// fails, then drains requests and releases every backend.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.pruner != nil && a.cfg.SessionPruneInterval > 0 {
		g.Go(func() error {
			runJanitor(gctx, a.cfg.SessionPruneInterval, a.pruner, a.logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown started")
		return a.drain()
	})

	err := g.Wait()
	return errors.Join(err, a.release())
}

// Shutdown drains in-flight requests and releases backends. It may be called
// more than once.
func (a *App) Shutdown() error {
	return errors.Join(a.drain(), a.release())
}

func (a *App) drain() error {
	if a.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http drain incomplete", slog.Any("error", err))
		return err
	}
	return nil
}

// onRelease records fn to run at shutdown. Releases run newest first, so the
// tracer registered first flushes last.
func (a *App) onRelease(component string, fn func(context.Context) error) {
	a.releases = append(a.releases, release{component: component, fn: fn})
}

func (a *App) release() error {
	pending := a.releases
	a.releases = nil

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		r := pending[i]
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		err := r.fn(ctx)
		cancel()
		if err != nil {
			a.logger.Error("release failed", slog.String("component", r.component), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", r.component, err))
		}
	}
	if len(pending) > 0 {
		a.logger.Info("backends released", slog.Int("count", len(pending)))
	}
	return errors.Join(errs...)
}
