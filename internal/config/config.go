package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	DatabaseDriver string
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer           string
	JWTAudience         string
	JWTSigningAlgorithm string
	JWTRSABits          int
	JWTAccessTTL        time.Duration

	RefreshTokenTTL      time.Duration
	RefreshTokenPepper   string
	RefreshTokenRotation bool

	MasterKeyPassphrase    string
	MasterKeySalt          string
	MasterKeyKDFIterations int

	LockoutMaxAttempts int
	LockoutDuration    time.Duration

	PasswordArgon2MemoryKiB   uint32
	PasswordArgon2Time        uint32
	PasswordArgon2Parallelism uint8
	PasswordHashConcurrency   int

	LegacyStaticToken      string
	LegacyTokenMaxAge      time.Duration
	LegacyTokenKeep        int
	LegacyTokenPermissions []string

	RBACPermissionCacheTTL time.Duration
	SessionCleanupInterval time.Duration

	AuthRateLimitRPM      int
	AuthRateLimitFailOpen bool

	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

// IsDevelopment reports whether diagnostic error detail may be exposed.
func (c *Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := load()
	profile := os.Getenv("APP_ENV")
	if err != nil {
		recordLoadOutcome(context.Background(), profile, err)
		return nil, err
	}
	recordLoadOutcome(context.Background(), cfg.Env, nil)
	return cfg, nil
}

func load() (*Config, error) {
	p := &envParser{}
	cfg := &Config{
		Env:      strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    getEnv("DATABASE_URL", "file:authd.db?_foreign_keys=on"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),

		JWTIssuer:           getEnv("JWT_ISSUER", "authd"),
		JWTAudience:         getEnv("JWT_AUDIENCE", "authd-clients"),
		JWTSigningAlgorithm: strings.ToUpper(getEnv("JWT_SIGNING_ALGORITHM", "RS256")),
		JWTRSABits:          p.int("JWT_RSA_BITS", 2048),
		JWTAccessTTL:        p.duration("JWT_ACCESS_TTL", 15*time.Minute),

		RefreshTokenTTL:      p.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RefreshTokenPepper:   os.Getenv("REFRESH_TOKEN_PEPPER"),
		RefreshTokenRotation: p.bool("REFRESH_TOKEN_ROTATION", true),

		MasterKeyPassphrase:    os.Getenv("MASTER_KEY_PASSPHRASE"),
		MasterKeySalt:          os.Getenv("MASTER_KEY_SALT"),
		MasterKeyKDFIterations: p.int("MASTER_KEY_KDF_ITERATIONS", 210_000),

		LockoutMaxAttempts: p.int("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:    p.duration("LOCKOUT_DURATION", 30*time.Minute),

		PasswordArgon2MemoryKiB:   uint32(p.int("PASSWORD_ARGON2_MEMORY_KIB", 64*1024)),
		PasswordArgon2Time:        uint32(p.int("PASSWORD_ARGON2_TIME", 3)),
		PasswordArgon2Parallelism: uint8(p.int("PASSWORD_ARGON2_PARALLELISM", 2)),
		PasswordHashConcurrency:   p.int("PASSWORD_HASH_CONCURRENCY", 4),

		LegacyStaticToken:      os.Getenv("LEGACY_STATIC_TOKEN"),
		LegacyTokenMaxAge:      p.duration("LEGACY_TOKEN_MAX_AGE", 24*time.Hour),
		LegacyTokenKeep:        p.int("LEGACY_TOKEN_KEEP", 10),
		LegacyTokenPermissions: splitList(getEnv("LEGACY_TOKEN_PERMISSIONS", "tokens.use")),

		RBACPermissionCacheTTL: p.duration("RBAC_PERMISSION_CACHE_TTL", 5*time.Minute),
		SessionCleanupInterval: p.duration("SESSION_CLEANUP_INTERVAL", 15*time.Minute),

		AuthRateLimitRPM:      p.int("AUTH_RATE_LIMIT_RPM", 30),
		AuthRateLimitFailOpen: p.bool("AUTH_RATE_LIMIT_FAIL_OPEN", true),

		OTELMetricsEnabled:        p.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.bool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "authd"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", getEnv("APP_ENV", EnvDevelopment)),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 10*time.Second),
		OTELTraceSamplingRatio:    p.float("OTEL_TRACE_SAMPLING_RATIO", 1.0),

		ShutdownTimeout:              p.duration("SHUTDOWN_TIMEOUT", 20*time.Second),
		ShutdownHTTPDrainTimeout:     p.duration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 10*time.Second),
		ShutdownObservabilityTimeout: p.duration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Errors are prefixed with
// "validate config:".
func (c *Config) Validate() error {
	var problems []string
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch c.JWTSigningAlgorithm {
	case "RS256", "ES256":
	default:
		problems = append(problems, fmt.Sprintf("JWT_SIGNING_ALGORITHM must be RS256 or ES256, got %q", c.JWTSigningAlgorithm))
	}
	if c.JWTSigningAlgorithm == "RS256" && c.JWTRSABits < 2048 {
		problems = append(problems, "JWT_RSA_BITS must be at least 2048")
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		problems = append(problems, "JWT_ISSUER and JWT_AUDIENCE are required")
	}
	if c.JWTAccessTTL <= 0 || c.RefreshTokenTTL <= 0 {
		problems = append(problems, "JWT_ACCESS_TTL and REFRESH_TOKEN_TTL must be positive")
	}
	if len(c.MasterKeyPassphrase) < 16 {
		problems = append(problems, "MASTER_KEY_PASSPHRASE must be at least 16 characters")
	}
	if len(c.MasterKeySalt) < 16 {
		problems = append(problems, "MASTER_KEY_SALT must be at least 16 characters")
	}
	if c.MasterKeyKDFIterations < 100_000 {
		problems = append(problems, "MASTER_KEY_KDF_ITERATIONS must be at least 100000")
	}
	if c.LockoutMaxAttempts < 1 || c.LockoutDuration <= 0 {
		problems = append(problems, "LOCKOUT_MAX_ATTEMPTS and LOCKOUT_DURATION must be positive")
	}
	if c.PasswordArgon2MemoryKiB < 8*1024 || c.PasswordArgon2Time < 1 || c.PasswordArgon2Parallelism < 1 {
		problems = append(problems, "argon2 parameters are below the supported minimum")
	}
	if c.PasswordHashConcurrency < 1 {
		problems = append(problems, "PASSWORD_HASH_CONCURRENCY must be positive")
	}
	if c.LegacyTokenKeep < 1 || c.LegacyTokenMaxAge <= 0 {
		problems = append(problems, "LEGACY_TOKEN_KEEP and LEGACY_TOKEN_MAX_AGE must be positive")
	}
	if c.Env == EnvProduction && c.RefreshTokenPepper == "" {
		problems = append(problems, "REFRESH_TOKEN_PEPPER is required in production")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLING_RATIO must be within [0,1]")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists every cross-field problem found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validate config: " + strings.Join(e.Problems, "; ")
}

// ParseError reports an environment value that could not be parsed.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Key, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envParser keeps the first parse failure so Load can report it once.
type envParser struct{ err error }

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = &ParseError{Key: key, Err: err}
	}
}

func (p *envParser) int(key string, def int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, err)
		return def
	}
	if v < 0 {
		p.fail(key, errors.New("must not be negative"))
		return def
	}
	return v
}

func (p *envParser) float(key string, def float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) bool(key string, def bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
