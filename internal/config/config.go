package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/carwatch/olx-monitor/internal/models"
	"github.com/carwatch/olx-monitor/internal/validator"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultEmailFrom = "OLX Monitor <onboarding@resend.dev>"
	defaultResendURL = "https://api.resend.com/emails"
	defaultTimezone  = "America/Sao_Paulo"
)

type Config struct {
	ResendAPIKey string
	ResendAPIURL string `validate:"required,url"`
	EmailTo      []string `validate:"omitempty,dive,email"`
	EmailFrom    string `validate:"required"`

	// DatabaseURL selects the ledger/archive backend. Empty means no durable state.
	DatabaseURL string
	Port        string `validate:"required,numeric"`

	CrawlInterval time.Duration `validate:"gt=0"`
	RunOnStart    bool

	Renderer      string `validate:"oneof=chromedp playwright"`
	ChromeBin     string
	UserAgent     string
	NavigationRPS float64 `validate:"gte=0"`

	ListingTimeout time.Duration `validate:"gt=0"`
	ListingSettle  time.Duration `validate:"gte=0"`
	DetailTimeout  time.Duration `validate:"gt=0"`
	DetailSettle   time.Duration `validate:"gte=0"`

	FIPETextFallback bool

	Location *time.Location
	Cities   []models.CityTarget `validate:"required,min=1,dive"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to read .env file, using process environment only", "error", err)
	}

	cfg := &Config{
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		ResendAPIURL: getEnv("RESEND_API_URL", defaultResendURL),
		EmailTo:      splitList(os.Getenv("EMAIL_TO")),
		EmailFrom:    getEnv("EMAIL_FROM", defaultEmailFrom),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Port:         getEnv("PORT", "8000"),
		Renderer:     strings.ToLower(getEnv("RENDERER", "chromedp")),
		ChromeBin:    os.Getenv("CHROME_BIN"),
		UserAgent:    getEnv("USER_AGENT", defaultUserAgent),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if cfg.ResendAPIKey == "" || len(cfg.EmailTo) == 0 {
		slog.Warn("RESEND_API_KEY or EMAIL_TO not set, email notifications will be skipped")
	}
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, seen ads and the archive will not be persisted")
	}

	var err error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"CRAWL_INTERVAL", time.Hour, &cfg.CrawlInterval},
		{"LISTING_TIMEOUT", 60 * time.Second, &cfg.ListingTimeout},
		{"LISTING_SETTLE", 5 * time.Second, &cfg.ListingSettle},
		{"DETAIL_TIMEOUT", 45 * time.Second, &cfg.DetailTimeout},
		{"DETAIL_SETTLE", 3 * time.Second, &cfg.DetailSettle},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.RunOnStart, err = getEnvBool("RUN_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.FIPETextFallback, err = getEnvBool("FIPE_TEXT_FALLBACK", true); err != nil {
		return nil, err
	}
	if v := os.Getenv("NAVIGATION_RPS"); v != "" {
		cfg.NavigationRPS, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid NAVIGATION_RPS %q: %w", v, err)
		}
	}

	cfg.Location = loadLocation(getEnv("TIMEZONE", defaultTimezone))

	cfg.Cities, err = LoadCities(os.Getenv("CITIES_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// EmailEnabled reports whether enough is configured to send notifications.
func (c *Config) EmailEnabled() bool {
	return c.ResendAPIKey != "" && len(c.EmailTo) > 0
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadLocation falls back to a fixed UTC-3 zone when tzdata is unavailable.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Unknown timezone, using fixed UTC-3", "timezone", name, "error", err)
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
