package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"parking-engine/internal/parking"
)

type Config struct {
	Port        string
	Environment string

	OTelServiceName string
	OTelEndpoint    string

	RulesFile          string
	Layout             parking.Layout
	ExpiryScanInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "parking-engine"),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		RulesFile:       getEnv("PARKING_RULES_FILE", ""),
	}

	defaults := parking.DefaultLayout()
	var err error
	if cfg.Layout.Levels, err = getEnvInt("PARKING_LEVELS", defaults.Levels); err != nil {
		return nil, err
	}
	if cfg.Layout.Standard, err = getEnvInt("PARKING_STANDARD_SLOTS", defaults.Standard); err != nil {
		return nil, err
	}
	if cfg.Layout.Member, err = getEnvInt("PARKING_MEMBER_SLOTS", defaults.Member); err != nil {
		return nil, err
	}
	if cfg.Layout.EV, err = getEnvInt("PARKING_EV_SLOTS", defaults.EV); err != nil {
		return nil, err
	}

	interval := getEnv("PARKING_EXPIRY_SCAN_INTERVAL", "1m")
	cfg.ExpiryScanInterval, err = time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("invalid PARKING_EXPIRY_SCAN_INTERVAL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.ExpiryScanInterval <= 0 {
		return fmt.Errorf("PARKING_EXPIRY_SCAN_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Rules returns the built-in rule table, overlaid with RulesFile when set.
func (c *Config) Rules() (parking.Rules, error) {
	if c.RulesFile == "" {
		return parking.DefaultRules(), nil
	}
	return LoadRules(c.RulesFile)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}
