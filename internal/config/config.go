package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	pkgconfig "github.com/Mukulsharnagat01/Collegedunia/pkg/config"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/tracing"
)

const (
	defaultAccessSecret  = "change-this-access-secret"
	defaultRefreshSecret = "change-this-refresh-secret"
	minSecretLength      = 32
	minBcryptCost        = 8
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`

	// HTTP server
	HTTPPort        int           `env:"AUTH_HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	BasePath        string        `env:"API_BASE_PATH" envDefault:"/api/v1"`

	// Storage backends
	UserStore    string `env:"USER_STORE" envDefault:"memory"`
	SessionStore string `env:"SESSION_STORE" envDefault:"memory"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"college"`
	PostgresPass     string `env:"POSTGRES_PASSWORD" envDefault:"college_secret"`
	PostgresDB       string `env:"AUTH_DB_NAME" envDefault:"college_auth"`
	PostgresSSL      string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`

	// SQLite
	SQLitePath string `env:"SQLITE_PATH" envDefault:"college_auth.db"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka. Empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// JWT
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-access-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-refresh-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"college-auth"`

	// Auth behaviour
	BcryptCost          int  `env:"BCRYPT_COST" envDefault:"10"`
	RotateRefreshTokens bool `env:"AUTH_ROTATE_REFRESH_TOKENS" envDefault:"false"`

	// SessionPruneInterval is how often expired sessions are purged from
	// stores without native expiry. 0 disables pruning.
	SessionPruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"1h"`

	// Refresh cookie. CookieSecure is "", "true" or "false"; empty means
	// secure everywhere except development.
	CookieSecure   string `env:"COOKIE_SECURE"`
	CookieSameSite string `env:"COOKIE_SAME_SITE" envDefault:"lax"`
	CookieDomain   string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Rate limiting on /auth routes
	AuthRateLimitRPS   float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
	AuthRateLimitBurst int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`
	TrustProxy         bool    `env:"TRUST_PROXY" envDefault:"false"`

	// Admin bootstrap
	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
	BootstrapAdminName     string `env:"BOOTSTRAP_ADMIN_NAME" envDefault:"Administrator"`

	// Debug
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Observability
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	Tracing            tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom is Load over an explicit environment, for tests.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.UserStore {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("USER_STORE must be one of memory, postgres, sqlite; got %q", c.UserStore)
	}
	switch c.SessionStore {
	case StoreMemory, StorePostgres, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("SESSION_STORE must be one of memory, redis, postgres, sqlite; got %q", c.SessionStore)
	}

	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.JWTAccessExpiry >= c.JWTRefreshExpiry {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY (%s) must be shorter than JWT_REFRESH_TOKEN_EXPIRY (%s)", c.JWTAccessExpiry, c.JWTRefreshExpiry)
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must not be empty")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Outside development, require explicitly set, strong secrets.
	if !c.IsDevelopment() {
		if c.JWTAccessSecret == defaultAccessSecret || c.JWTRefreshSecret == defaultRefreshSecret {
			return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTAccessSecret) < minSecretLength || len(c.JWTRefreshSecret) < minSecretLength {
			return fmt.Errorf("JWT secrets must be at least %d characters long", minSecretLength)
		}
	}

	if c.BcryptCost < minBcryptCost || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between %d and 31, got %d", minBcryptCost, c.BcryptCost)
	}

	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict":
	default:
		return fmt.Errorf("COOKIE_SAME_SITE must be lax or strict, got %q", c.CookieSameSite)
	}
	switch c.CookieSecure {
	case "", "true", "false":
	default:
		return fmt.Errorf("COOKIE_SECURE must be true or false, got %q", c.CookieSecure)
	}

	for _, o := range c.CORSAllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS must list explicit origins; \"*\" cannot be combined with credentials")
		}
	}

	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	if c.SessionPruneInterval < 0 {
		return fmt.Errorf("SESSION_PRUNE_INTERVAL must not be negative")
	}

	if c.AuthRateLimitRPS <= 0 || c.AuthRateLimitBurst < 1 {
		return fmt.Errorf("auth rate limit must be positive")
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("API_BASE_PATH must start with '/', got %q", c.BasePath)
	}

	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SecureCookies reports whether the refresh cookie carries the Secure flag.
func (c *Config) SecureCookies() bool {
	switch c.CookieSecure {
	case "true":
		return true
	case "false":
		return false
	default:
		return !c.IsDevelopment()
	}
}

// SameSite maps COOKIE_SAME_SITE to its http constant.
func (c *Config) SameSite() http.SameSite {
	if strings.EqualFold(c.CookieSameSite, "strict") {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// CookiePath scopes the refresh cookie to the auth routes.
func (c *Config) CookiePath() string {
	return strings.TrimRight(c.BasePath, "/") + "/auth"
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.PostgresMaxConns
	return pg
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	r := database.DefaultRedisConfig()
	r.Host = c.RedisHost
	r.Port = c.RedisPort
	r.Password = c.RedisPassword
	r.DB = c.RedisDB
	return r
}

// NeedsPostgres reports whether any store is backed by PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.UserStore == StorePostgres || c.SessionStore == StorePostgres
}

// NeedsSQLite reports whether any store is backed by SQLite.
func (c *Config) NeedsSQLite() bool {
	return c.UserStore == StoreSQLite || c.SessionStore == StoreSQLite
}
