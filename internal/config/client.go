package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client configures the interactive auth client.
type Client struct {
	LogLevel string
	// APIURL is the base URL of the auth API used as fallback code delivery and for PINs.
	APIURL string
	// ToolkitURL and ToolkitKey address the primary identity provider. An empty key
	// disables the primary provider.
	ToolkitURL     string
	ToolkitKey     string
	RecaptchaToken string

	SessionPath        string
	DefaultCountryCode string
	CodeLength         int
	PINLength          int
	LockoutThreshold   int
	LockoutDuration    time.Duration
	ProviderTimeout    time.Duration
	ResendInterval     time.Duration
}

// LoadClient reads client settings from .env and the environment.
func LoadClient() (Client, error) {
	loadDotEnv()

	cfg := Client{
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "warn")),
		APIURL:             strings.TrimRight(getEnv("RAGA_API_URL", "http://localhost:8080"), "/"),
		ToolkitURL:         strings.TrimRight(getEnv("IDENTITY_TOOLKIT_URL", "https://identitytoolkit.googleapis.com/v1"), "/"),
		ToolkitKey:         os.Getenv("IDENTITY_TOOLKIT_KEY"),
		RecaptchaToken:     os.Getenv("RECAPTCHA_TOKEN"),
		SessionPath:        getEnv("SESSION_PATH", defaultSessionPath()),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "+91"),
	}

	var err error
	if cfg.CodeLength, err = getInt("CODE_LENGTH", 6); err != nil {
		return Client{}, err
	}
	if cfg.PINLength, err = getInt("PIN_LENGTH", 4); err != nil {
		return Client{}, err
	}
	if cfg.LockoutThreshold, err = getInt("LOCKOUT_THRESHOLD", 5); err != nil {
		return Client{}, err
	}
	if cfg.LockoutDuration, err = getDuration("LOCKOUT_DURATION_SECONDS", "LOCKOUT_DURATION", 15*time.Minute); err != nil {
		return Client{}, err
	}
	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT_SECONDS", "PROVIDER_TIMEOUT", 30*time.Second); err != nil {
		return Client{}, err
	}
	if cfg.ResendInterval, err = getDuration("RESEND_INTERVAL_SECONDS", "RESEND_INTERVAL", 30*time.Second); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".raga-mitra-session.json"
	}
	return filepath.Join(dir, "raga-mitra", "session.json")
}
