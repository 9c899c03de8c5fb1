// Package config loads the e-signature service settings: an optional YAML
// file named by ESIGN_CONFIG, then environment variables on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ArtifactConfig struct {
	Type       string `yaml:"type"`
	DataDir    string `yaml:"data_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`
}

type Config struct {
	Port          int    `yaml:"port"`
	StorageDriver string `yaml:"storage_driver"`
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	FixturesPath  string `yaml:"fixtures_path"`
	PublicBaseURL string `yaml:"public_base_url"`
	Timezone      string `yaml:"timezone"`

	MaxExpirationDays      int  `yaml:"max_expiration_days"`
	VerifyMaxAttempts      int  `yaml:"verify_max_attempts"`
	VerifyWindowMinutes    int  `yaml:"verify_window_minutes"`
	VerificationTTLMinutes int  `yaml:"verification_ttl_minutes"`
	CodeTTLMinutes         int  `yaml:"code_ttl_minutes"`
	RequireCode            bool `yaml:"require_code"`
	DevExposeCode          bool `yaml:"dev_expose_code"`

	VerificationSecret string `yaml:"verification_secret"`
	OperatorJWTSecret  string `yaml:"operator_jwt_secret"`
	OperatorJWTIssuer  string `yaml:"operator_jwt_issuer"`

	Redis     RedisConfig    `yaml:"redis"`
	Artifacts ArtifactConfig `yaml:"artifacts"`

	PublicRateLimitPerSecond   float64 `yaml:"public_rate_limit_per_second"`
	PublicRateBurst            int     `yaml:"public_rate_burst"`
	MaxBodyBytes               int64   `yaml:"max_body_bytes"`
	MaxUploadBytes             int     `yaml:"max_upload_bytes"`
	ExpirySweepIntervalSeconds int     `yaml:"expiry_sweep_interval_seconds"`

	LegalBasis    string `yaml:"legal_basis"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	LogLevel      string `yaml:"log_level"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
}

func Default() Config {
	return Config{
		Port:                       8090,
		StorageDriver:              "postgres",
		SQLitePath:                 ":memory:",
		PublicBaseURL:              "http://localhost:8090",
		Timezone:                   "America/Sao_Paulo",
		MaxExpirationDays:          30,
		VerifyMaxAttempts:          5,
		VerifyWindowMinutes:        15,
		VerificationTTLMinutes:     15,
		CodeTTLMinutes:             10,
		OperatorJWTIssuer:          "hr-docs",
		Artifacts:                  ArtifactConfig{Type: "fs", DataDir: "./data"},
		PublicRateLimitPerSecond:   5,
		PublicRateBurst:            20,
		MaxBodyBytes:               1 << 20,
		MaxUploadBytes:             512 << 10,
		ExpirySweepIntervalSeconds: 300,
		LogLevel:                   "info",
	}
}

// Load reads ESIGN_CONFIG when set and applies environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("ESIGN_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envIntDefault("SERVICE_PORT", c.Port)
	c.StorageDriver = envStringDefault("STORAGE_DRIVER", c.StorageDriver)
	c.DatabaseURL = envStringDefault("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = envStringDefault("SQLITE_PATH", c.SQLitePath)
	c.FixturesPath = envStringDefault("SEED_FIXTURES", c.FixturesPath)
	c.PublicBaseURL = envStringDefault("PUBLIC_BASE_URL", c.PublicBaseURL)
	c.Timezone = envStringDefault("TIMEZONE", c.Timezone)

	c.MaxExpirationDays = envIntDefault("MAX_EXPIRATION_DAYS", c.MaxExpirationDays)
	c.VerifyMaxAttempts = envIntDefault("VERIFY_MAX_ATTEMPTS", c.VerifyMaxAttempts)
	c.VerifyWindowMinutes = envIntDefault("VERIFY_WINDOW_MINUTES", c.VerifyWindowMinutes)
	c.VerificationTTLMinutes = envIntDefault("VERIFICATION_TTL_MINUTES", c.VerificationTTLMinutes)
	c.CodeTTLMinutes = envIntDefault("CODE_TTL_MINUTES", c.CodeTTLMinutes)
	c.RequireCode = envBoolDefault("REQUIRE_CODE", c.RequireCode)
	c.DevExposeCode = envBoolDefault("DEV_EXPOSE_CODE", c.DevExposeCode)

	c.VerificationSecret = envStringDefault("VERIFICATION_SECRET", c.VerificationSecret)
	c.OperatorJWTSecret = envStringDefault("OPERATOR_JWT_SECRET", c.OperatorJWTSecret)
	c.OperatorJWTIssuer = envStringDefault("OPERATOR_JWT_ISSUER", c.OperatorJWTIssuer)

	c.Redis.Addr = envStringDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envStringDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envIntDefault("REDIS_DB", c.Redis.DB)

	c.Artifacts.Type = envStringDefault("ARTIFACT_STORAGE_TYPE", c.Artifacts.Type)
	c.Artifacts.DataDir = envStringDefault("DATA_DIR", c.Artifacts.DataDir)
	c.Artifacts.S3Bucket = envStringDefault("ARTIFACT_S3_BUCKET", c.Artifacts.S3Bucket)
	c.Artifacts.S3Region = envStringDefault("ARTIFACT_S3_REGION", c.Artifacts.S3Region)
	c.Artifacts.S3Endpoint = envStringDefault("ARTIFACT_S3_ENDPOINT", c.Artifacts.S3Endpoint)
	c.Artifacts.S3Prefix = envStringDefault("ARTIFACT_S3_PREFIX", c.Artifacts.S3Prefix)

	c.PublicRateLimitPerSecond = envFloatDefault("PUBLIC_RATE_LIMIT_PER_SECOND", c.PublicRateLimitPerSecond)
	c.PublicRateBurst = envIntDefault("PUBLIC_RATE_BURST", c.PublicRateBurst)
	c.MaxBodyBytes = int64(envIntDefault("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.MaxUploadBytes = envIntDefault("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.ExpirySweepIntervalSeconds = envIntDefault("EXPIRY_SWEEP_INTERVAL_SECONDS", c.ExpirySweepIntervalSeconds)

	c.LegalBasis = envStringDefault("LEGAL_BASIS", c.LegalBasis)
	c.WebhookURL = envStringDefault("WEBHOOK_URL", c.WebhookURL)
	c.WebhookSecret = envStringDefault("WEBHOOK_SECRET", c.WebhookSecret)
	c.LogLevel = envStringDefault("LOG_LEVEL", c.LogLevel)
	c.OTLPEndpoint = envStringDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.VerificationSecret) == "" {
		problems = append(problems, "VERIFICATION_SECRET is required")
	} else if len(c.VerificationSecret) < 32 {
		problems = append(problems, "VERIFICATION_SECRET must be at least 32 bytes")
	}
	if strings.TrimSpace(c.OperatorJWTSecret) == "" {
		problems = append(problems, "OPERATOR_JWT_SECRET is required")
	}
	switch c.StorageDriver {
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres driver")
		}
	case "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_DRIVER %q must be postgres or sqlite", c.StorageDriver))
	}
	switch c.Artifacts.Type {
	case "", "fs":
	case "s3":
		if strings.TrimSpace(c.Artifacts.S3Bucket) == "" {
			problems = append(problems, "ARTIFACT_S3_BUCKET is required for s3 artifacts")
		}
	default:
		problems = append(problems, fmt.Sprintf("ARTIFACT_STORAGE_TYPE %q must be fs or s3", c.Artifacts.Type))
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, "SERVICE_PORT out of range")
	}
	if c.MaxExpirationDays < 1 {
		problems = append(problems, "MAX_EXPIRATION_DAYS must be at least 1")
	}
	if c.VerifyMaxAttempts < 1 || c.VerifyWindowMinutes < 1 {
		problems = append(problems, "VERIFY_MAX_ATTEMPTS and VERIFY_WINDOW_MINUTES must be positive")
	}
	if c.PublicRateLimitPerSecond <= 0 || c.PublicRateBurst < 1 {
		problems = append(problems, "public rate limit must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("TIMEZONE %q: %v", c.Timezone, err))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) VerifyWindow() time.Duration {
	return time.Duration(c.VerifyWindowMinutes) * time.Minute
}

func (c Config) VerificationTTL() time.Duration {
	return time.Duration(c.VerificationTTLMinutes) * time.Minute
}

func (c Config) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLMinutes) * time.Minute
}

func (c Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepIntervalSeconds) * time.Second
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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

func envStringDefault(key, def string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	return raw
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < 0 {
		return def
	}
	return v
}

func envFloatDefault(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envBoolDefault(key string, def bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return def
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
