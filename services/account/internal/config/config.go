package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/MediaCatalog/pkg/config"
	"github.com/utafrali/MediaCatalog/pkg/database"
	"github.com/utafrali/MediaCatalog/pkg/middleware"
	"github.com/utafrali/MediaCatalog/pkg/tracing"
	"github.com/utafrali/MediaCatalog/services/account/internal/notifier"
	"github.com/utafrali/MediaCatalog/services/account/internal/ratelimit"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Notifier backends.
const (
	NotifierSMTP  = "smtp"
	NotifierKafka = "kafka"
	NotifierLog   = "log"
)

// Config holds all configuration for the account service. It is built once
// at startup and passed by reference; nothing reads the environment later.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"ACCOUNT_HTTP_PORT" envDefault:"8001"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"media"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"media_secret"`
	PostgresDB       string        `env:"ACCOUNT_DB_NAME" envDefault:"account_db"`
	PostgresSSL      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	PostgresMinConns int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	SlowQuery        time.Duration `env:"POSTGRES_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAlgorithm     string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"media-catalog"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"30m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Credentials and recovery
	BcryptCost               int           `env:"BCRYPT_COST" envDefault:"12"`
	OTPLength                int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPTTL                   time.Duration `env:"OTP_TTL" envDefault:"10m"`
	ResetConcealUnknownEmail bool          `env:"RESET_CONCEAL_UNKNOWN_EMAIL" envDefault:"false"`
	ResetSweepInterval       time.Duration `env:"RESET_SWEEP_INTERVAL" envDefault:"5m"`

	// Reset code delivery
	Notifier     string `env:"NOTIFIER" envDefault:"log"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@media-catalog.local"`
	SMTPSubject  string `env:"SMTP_SUBJECT" envDefault:"Password Reset OTP"`

	// Rate limiting, per email. A zero limit disables the rule.
	RateLimitEnabled      bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitLogin        int64         `env:"RATE_LIMIT_LOGIN" envDefault:"10"`
	RateLimitResetRequest int64         `env:"RATE_LIMIT_RESET_REQUEST" envDefault:"3"`
	RateLimitResetConfirm int64         `env:"RATE_LIMIT_RESET_CONFIRM" envDefault:"5"`
	RateLimitWindow       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`

	// Rate limiting, per client IP, on the unauthenticated routes.
	ClientRateLimitRPS   float64 `env:"CLIENT_RATE_LIMIT_RPS" envDefault:"5"`
	ClientRateLimitBurst int     `env:"CLIENT_RATE_LIMIT_BURST" envDefault:"20"`
	TrustProxyHeaders    bool    `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load account config: %w", err)
	}
	return cfg, nil
}

// Validate implements pkgconfig.Validator.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment))
		} else if len(c.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret)))
		}
	}
	if c.JWTAlgorithm != "HS256" {
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q is not supported, only HS256", c.JWTAlgorithm))
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		errs = append(errs, errors.New("JWT token expiries must be positive"))
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.OTPLength < 4 || c.OTPLength > 18 {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 4 and 18, got %d", c.OTPLength))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.ResetSweepInterval <= 0 {
		errs = append(errs, errors.New("RESET_SWEEP_INTERVAL must be positive"))
	}

	switch c.Notifier {
	case NotifierLog:
		if c.Environment == "production" {
			errs = append(errs, errors.New("NOTIFIER=log does not deliver reset codes and is not allowed in production"))
		}
	case NotifierKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("NOTIFIER=kafka requires KAFKA_BROKERS"))
		}
	case NotifierSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			errs = append(errs, errors.New("NOTIFIER=smtp requires SMTP_HOST and SMTP_FROM"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER must be one of smtp, kafka, log; got %q", c.Notifier))
	}

	if c.RateLimitEnabled && c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.ClientRateLimitRPS < 0 || c.ClientRateLimitBurst < 0 {
		errs = append(errs, errors.New("CLIENT_RATE_LIMIT_RPS and CLIENT_RATE_LIMIT_BURST must not be negative"))
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTelSampleRate))
	}

	return errors.Join(errs...)
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.PostgresMaxConns
	pg.MinConns = c.PostgresMinConns
	return &pg
}

// Redis returns the Redis client settings.
func (c *Config) Redis() database.RedisConfig {
	r := database.DefaultRedisConfig()
	r.Host = c.RedisHost
	r.Port = c.RedisPort
	r.Password = c.RedisPassword
	r.DB = c.RedisDB
	return r
}

// SMTP returns the mail relay settings.
func (c *Config) SMTP() notifier.SMTPConfig {
	return notifier.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		Subject:  c.SMTPSubject,
	}
}

// RateLimitRules returns the per-action limits.
func (c *Config) RateLimitRules() map[ratelimit.Action]ratelimit.Rule {
	return map[ratelimit.Action]ratelimit.Rule{
		ratelimit.ActionLogin:        {Limit: c.RateLimitLogin, Window: c.RateLimitWindow},
		ratelimit.ActionResetRequest: {Limit: c.RateLimitResetRequest, Window: c.RateLimitWindow},
		ratelimit.ActionResetConfirm: {Limit: c.RateLimitResetConfirm, Window: c.RateLimitWindow},
	}
}

// ClientLimit returns the per-IP throttle settings.
func (c *Config) ClientLimit() middleware.ClientLimitConfig {
	return middleware.ClientLimitConfig{
		RPS:        c.ClientRateLimitRPS,
		Burst:      c.ClientRateLimitBurst,
		TrustProxy: c.TrustProxyHeaders,
	}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing(serviceName string) tracing.Config {
	t := tracing.DefaultConfig(serviceName)
	t.Environment = c.Environment
	t.OTLPEndpoint = c.OTelEndpoint
	t.SampleRate = c.OTelSampleRate
	t.Enabled = c.OTelEnabled
	return t
}

// CORS returns the CORS middleware settings.
func (c *Config) CORS() middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = c.CORSAllowedOrigins
	cors.Environment = c.Environment
	return cors
}

// String renders the config for startup logs with credentials masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "env=%s http_port=%d postgres=%s:%d/%s redis=%s:%d notifier=%s",
		c.Environment, c.HTTPPort, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.RedisHost, c.RedisPort, c.Notifier)
	fmt.Fprintf(&b, " access_ttl=%s refresh_ttl=%s otp_ttl=%s bcrypt_cost=%d", c.JWTAccessExpiry, c.JWTRefreshExpiry, c.OTPTTL, c.BcryptCost)
	return b.String()
}
