package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wanderly/identity/internal/auth"
	"github.com/wanderly/identity/internal/mailer"
	"github.com/wanderly/identity/internal/ratelimit"
	"github.com/wanderly/identity/internal/verification"
	pkgconfig "github.com/wanderly/identity/pkg/config"
	"github.com/wanderly/identity/pkg/database"
	"github.com/wanderly/identity/pkg/httpclient"
	"github.com/wanderly/identity/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics, traces and events.
const ServiceName = "identity-service"

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Mail drivers.
const (
	MailDriverLog = "log"
	MailDriverAPI = "api"
)

const devJWTSecret = "dev-only-secret-change-me-in-every-real-environment"

// Config holds all configuration for the identity service.
type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort          int           `env:"IDENTITY_HTTP_PORT" envDefault:"8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Store
	StoreDriver        string        `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"identity"`
	PostgresPass       string        `env:"POSTGRES_PASSWORD" envDefault:"identity_secret"`
	PostgresDB         string        `env:"IDENTITY_DB_NAME" envDefault:"identity_db"`
	PostgresSSL        string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns   int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresMinConns   int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MigrateOnStart     bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis backs the rate limiter. Without REDIS_HOST an in-process limiter
	// is used.
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RedisHost         string        `env:"REDIS_HOST"`
	RedisPort         int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT. Previous secrets are "kid:secret" pairs that still verify tokens
	// signed before a rotation.
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"dev-only-secret-change-me-in-every-real-environment"`
	JWTKeyID           string        `env:"JWT_KEY_ID" envDefault:"primary"`
	JWTPreviousSecrets []string      `env:"JWT_PREVIOUS_SECRETS" envSeparator:","`
	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"identity-service"`
	JWTAccessTTL       time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshTTL      time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Hashing and one-time codes
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"10m"`
	CodeMaxAttempts int           `env:"CODE_MAX_ATTEMPTS" envDefault:"5"`
	CodeMaxResends  int           `env:"CODE_MAX_RESENDS" envDefault:"3"`

	// Mail
	MailDriver     string            `env:"MAIL_DRIVER" envDefault:"log"`
	MailAPIBaseURL string            `env:"MAIL_API_BASE_URL" envDefault:"https://api.resend.com"`
	MailAPIKey     string            `env:"MAIL_API_KEY"`
	MailFrom       string            `env:"MAIL_FROM" envDefault:"Wanderly <no-reply@wanderly.app>"`
	MailHTTP       httpclient.Config `envPrefix:"MAIL_HTTP_"`

	// Cookies and CORS
	CookieDomain       string   `env:"COOKIE_DOMAIN"`
	CookieSecure       bool     `env:"COOKIE_SECURE" envDefault:"true"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	Tracing tracing.Config `envPrefix:"TRACING_"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want %q or %q", c.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	switch c.MailDriver {
	case MailDriverLog:
	case MailDriverAPI:
		if c.MailAPIKey == "" || c.MailFrom == "" {
			return errors.New("MAIL_API_KEY and MAIL_FROM are required with MAIL_DRIVER=api")
		}
	default:
		return fmt.Errorf("invalid MAIL_DRIVER %q: want %q or %q", c.MailDriver, MailDriverLog, MailDriverAPI)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if !c.IsDevelopment() {
		if c.JWTSecret == devJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
		if c.StoreDriver == StoreDriverMemory {
			return fmt.Errorf("STORE_DRIVER=memory is only allowed in development, not %q", c.Environment)
		}
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"JWT_ACCESS_TOKEN_EXPIRY", c.JWTAccessTTL},
		{"JWT_REFRESH_TOKEN_EXPIRY", c.JWTRefreshTTL},
		{"CODE_TTL", c.CodeTTL},
		{"RATE_LIMIT_WINDOW", c.RateLimitWindow},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.JWTRefreshTTL <= c.JWTAccessTTL {
		return errors.New("JWT_REFRESH_TOKEN_EXPIRY must be longer than JWT_ACCESS_TOKEN_EXPIRY")
	}

	if c.CodeMaxAttempts < 1 || c.CodeMaxResends < 1 {
		return errors.New("CODE_MAX_ATTEMPTS and CODE_MAX_RESENDS must be at least 1")
	}
	if c.RateLimitEnabled && c.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}

	if _, err := c.previousKeys(); err != nil {
		return err
	}
	return nil
}

// PostgresConfig returns the database connection settings.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        c.PostgresMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// RedisConfig returns the Redis connection settings.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:        c.RedisHost,
		Port:        c.RedisPort,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 5 * time.Second,
	}
}

// RateLimitRule returns the per-route auth throttle.
func (c *Config) RateLimitRule() ratelimit.Rule {
	return ratelimit.Rule{Limit: c.RateLimitRequests, Window: c.RateLimitWindow}
}

// SignerConfig returns the token signer settings.
func (c *Config) SignerConfig() auth.SignerConfig {
	previous, _ := c.previousKeys()
	return auth.SignerConfig{
		ActiveKey:    auth.Key{ID: c.JWTKeyID, Secret: []byte(c.JWTSecret)},
		PreviousKeys: previous,
		AccessTTL:    c.JWTAccessTTL,
		RefreshTTL:   c.JWTRefreshTTL,
		Issuer:       c.JWTIssuer,
	}
}

func (c *Config) previousKeys() ([]auth.Key, error) {
	keys := make([]auth.Key, 0, len(c.JWTPreviousSecrets))
	for _, pair := range c.JWTPreviousSecrets {
		id, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || id == "" || secret == "" {
			return nil, errors.New("JWT_PREVIOUS_SECRETS entries must look like kid:secret")
		}
		if id == c.JWTKeyID {
			return nil, fmt.Errorf("JWT_PREVIOUS_SECRETS reuses the active key id %q", id)
		}
		keys = append(keys, auth.Key{ID: id, Secret: []byte(secret)})
	}
	return keys, nil
}

// CodeConfig returns the quotas shared by both code purposes.
func (c *Config) CodeConfig() verification.Config {
	cfg := verification.DefaultConfig()
	cfg.TTL = c.CodeTTL
	cfg.MaxAttempts = c.CodeMaxAttempts
	cfg.MaxResends = c.CodeMaxResends
	return cfg
}

// MailAPIConfig returns the settings of the transactional mail API.
func (c *Config) MailAPIConfig() mailer.APIConfig {
	return mailer.APIConfig{BaseURL: c.MailAPIBaseURL, APIKey: c.MailAPIKey, From: c.MailFrom}
}

// TracingConfig returns the tracer settings with the service identity filled in.
func (c *Config) TracingConfig() tracing.Config {
	cfg := c.Tracing
	cfg.ServiceName = ServiceName
	cfg.ServiceVersion = c.ServiceVersion
	cfg.Environment = c.Environment
	return cfg
}
