package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAppName         = "RagaMitra"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultConfigPath      = "config/app.yaml"
	defaultDevJWTSecret    = "dev-only-secret-change-me"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultSessionTTL      = 30 * 24 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures API server configuration.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	AppName        string        `yaml:"app_name"`
	AppEnv         string        `yaml:"app_env"`
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"log_level"`
	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	ShutdownPeriod time.Duration `yaml:"shutdown_timeout"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`

	CodeLength      int           `yaml:"code_length"`
	CodeTTL         time.Duration `yaml:"code_ttl"`
	CodeMaxAttempts int           `yaml:"code_max_attempts"`

	PINLength        int           `yaml:"pin_length"`
	LockoutThreshold int           `yaml:"lockout_threshold"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`

	SendCodePerMinute int `yaml:"send_code_per_minute"`
	LoginPerMinute    int `yaml:"login_per_minute"`

	DefaultCountryCode string `yaml:"default_country_code"`

	// ProviderIssuer and ProviderAudience enable ID-token proofs from the primary identity
	// provider. Both empty disables them.
	ProviderIssuer   string `yaml:"provider_issuer"`
	ProviderAudience string `yaml:"provider_audience"`
}

// Load reads .env (outside production), the optional YAML file and the environment.
func Load() (Config, error) {
	loadDotEnv()

	cfg := Config{
		AppName:            defaultAppName,
		AppEnv:             defaultAppEnv,
		Port:               defaultPort,
		LogLevel:           defaultLogLevel,
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		SessionTTL:         defaultSessionTTL,
		CodeLength:         6,
		CodeTTL:            5 * time.Minute,
		CodeMaxAttempts:    5,
		PINLength:          4,
		LockoutThreshold:   5,
		LockoutDuration:    15 * time.Minute,
		SendCodePerMinute:  3,
		LoginPerMinute:     10,
		DefaultCountryCode: "+91",
	}

	if err := loadFile(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.DefaultCountryCode = getEnv("DEFAULT_COUNTRY_CODE", cfg.DefaultCountryCode)
	cfg.ProviderIssuer = getEnv("PROVIDER_ISSUER", cfg.ProviderIssuer)
	cfg.ProviderAudience = getEnv("PROVIDER_AUDIENCE", cfg.ProviderAudience)

	var err error
	if cfg.ShutdownPeriod, err = getDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL_SECONDS", "SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.CodeTTL, err = getDuration("CODE_TTL_SECONDS", "CODE_TTL", cfg.CodeTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockoutDuration, err = getDuration("LOCKOUT_DURATION_SECONDS", "LOCKOUT_DURATION", cfg.LockoutDuration); err != nil {
		return Config{}, err
	}
	for key, dst := range map[string]*int{
		"CODE_LENGTH":          &cfg.CodeLength,
		"CODE_MAX_ATTEMPTS":    &cfg.CodeMaxAttempts,
		"PIN_LENGTH":           &cfg.PINLength,
		"LOCKOUT_THRESHOLD":    &cfg.LockoutThreshold,
		"SEND_CODE_PER_MINUTE": &cfg.SendCodePerMinute,
		"LOGIN_PER_MINUTE":     &cfg.LoginPerMinute,
	} {
		if *dst, err = getInt(key, *dst); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", c.AppEnv)
		}
	} else if c.JWTSecret == "" {
		c.JWTSecret = defaultDevJWTSecret
	}
	if c.LockoutThreshold <= 0 {
		return fmt.Errorf("lockout threshold must be positive")
	}
	if c.CodeLength < 4 || c.CodeLength > 10 {
		return fmt.Errorf("code length must be between 4 and 10")
	}
	if c.PINLength < 4 || c.PINLength > 8 {
		return fmt.Errorf("PIN length must be between 4 and 8")
	}
	if (c.ProviderIssuer == "") != (c.ProviderAudience == "") {
		return fmt.Errorf("PROVIDER_ISSUER and PROVIDER_AUDIENCE must be set together")
	}
	return nil
}

// IsDev reports whether the app runs in a development environment, where Postgres and Redis
// are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func loadDotEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	// A missing .env is normal.
	_ = godotenv.Load()
}

// loadFile applies CONFIG_PATH (or config/app.yaml when present). An explicit path must exist.
func loadFile(cfg *Config) error {
	path, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || path == "" {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getDuration reads an integer seconds variable first, then a Go duration string.
func getDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}
