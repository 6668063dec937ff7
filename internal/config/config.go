package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Location sources.
const (
	LocationStatic    = "static"
	LocationSimulated = "simulated"
	LocationDenied    = "denied"
)

type Config struct {
	HubURL           string `yaml:"hubURL" validate:"required,url"`
	HubName          string `yaml:"hubName" validate:"required"`
	HubClientName    string `yaml:"hubClientName"`
	MaxReconnects    int    `yaml:"maxReconnects" validate:"gte=-1"`
	ReconnectWaitMS  int    `yaml:"reconnectWaitMS" validate:"gt=0"`
	InvokeTimeoutSec int    `yaml:"invokeTimeoutSec" validate:"gt=0"`

	LocationMode       string  `yaml:"locationMode" validate:"oneof=static simulated denied"`
	LocationLat        float64 `yaml:"locationLat" validate:"gte=-90,lte=90"`
	LocationLon        float64 `yaml:"locationLon" validate:"gte=-180,lte=180"`
	LocationPath       string  `yaml:"locationPath" validate:"required_if=LocationMode simulated"`
	LocationSpeedMps   float64 `yaml:"locationSpeedMps" validate:"gt=0"`
	LocationIntervalMS int     `yaml:"locationIntervalMS" validate:"gt=0"`

	PrefsDSN string `yaml:"prefsDSN" validate:"required"`
	Language string `yaml:"language" validate:"oneof=en ru hy"`

	// Empty disables the HTTP server.
	MetricsAddr string `yaml:"metricsAddr"`
	// Comma separated CORS origins for the HTTP API; empty allows any.
	AllowedOrigins string `yaml:"allowedOrigins"`
	LogLevel       string `yaml:"logLevel" validate:"oneof=debug info warn warning error"`
	LogPushes      bool   `yaml:"logPushes"`
}

// Origins splits AllowedOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) ReconnectWait() time.Duration {
	return time.Duration(c.ReconnectWaitMS) * time.Millisecond
}

func (c *Config) InvokeTimeout() time.Duration {
	return time.Duration(c.InvokeTimeoutSec) * time.Second
}

func (c *Config) LocationInterval() time.Duration {
	return time.Duration(c.LocationIntervalMS) * time.Millisecond
}

func defaults() *Config {
	return &Config{
		HubURL:             "nats://127.0.0.1:4222",
		HubName:            "UserHub",
		HubClientName:      "transit-client",
		MaxReconnects:      -1,
		ReconnectWaitMS:    2000,
		InvokeTimeoutSec:   30,
		LocationMode:       LocationStatic,
		LocationLat:        40.1792,
		LocationLon:        44.4991,
		LocationSpeedMps:   8,
		LocationIntervalMS: 3000,
		PrefsDSN:           "file:transit-client.db",
		Language:           "en",
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CONFIG_FILE, then environment variables (.env included).
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
	}

	cfg.HubURL = getenvDefault("HUB_URL", cfg.HubURL)
	cfg.HubName = getenvDefault("HUB_NAME", cfg.HubName)
	cfg.HubClientName = getenvDefault("HUB_CLIENT_NAME", cfg.HubClientName)

	var err error
	if cfg.MaxReconnects, err = envInt("HUB_MAX_RECONNECTS", cfg.MaxReconnects); err != nil {
		return nil, err
	}
	if cfg.ReconnectWaitMS, err = envInt("HUB_RECONNECT_WAIT_MS", cfg.ReconnectWaitMS); err != nil {
		return nil, err
	}
	if cfg.InvokeTimeoutSec, err = envInt("HUB_INVOKE_TIMEOUT_SEC", cfg.InvokeTimeoutSec); err != nil {
		return nil, err
	}

	cfg.LocationMode = strings.ToLower(getenvDefault("LOCATION_MODE", cfg.LocationMode))
	if cfg.LocationLat, err = envFloat("LOCATION_LAT", cfg.LocationLat); err != nil {
		return nil, err
	}
	if cfg.LocationLon, err = envFloat("LOCATION_LON", cfg.LocationLon); err != nil {
		return nil, err
	}
	cfg.LocationPath = getenvDefault("LOCATION_PATH", cfg.LocationPath)
	if cfg.LocationSpeedMps, err = envFloat("LOCATION_SPEED_MPS", cfg.LocationSpeedMps); err != nil {
		return nil, err
	}
	if cfg.LocationIntervalMS, err = envInt("LOCATION_INTERVAL_MS", cfg.LocationIntervalMS); err != nil {
		return nil, err
	}

	cfg.PrefsDSN = firstNonEmpty(os.Getenv("PREFS_DSN"), cfg.PrefsDSN)
	cfg.Language = strings.ToLower(getenvDefault("LANGUAGE", cfg.Language))
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.AllowedOrigins = getenvDefault("HTTP_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))
	if v := os.Getenv("LOG_PUSHES"); v != "" {
		cfg.LogPushes = isTrue(v)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func envFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}
