// Package config loads the daemon configuration from a JSON file,
// applies defaults, overlays secrets from the environment, and
// validates the result.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/joshp123/senso4s/internal/history"
	"github.com/joshp123/senso4s/internal/homeassistant"
)

const (
	DefaultPath                = "/etc/senso4s/config.json"
	DefaultHTTPAddr            = "0.0.0.0:8080"
	DefaultRegistryPath        = "/var/lib/senso4s/devices.json"
	DefaultScanIntervalSeconds = 300
)

// Config is the daemon configuration. The mqtt and influx sections
// are optional; leaving one out disables that surface.
type Config struct {
	HTTPAddr            string `json:"http_addr"`
	Adapter             string `json:"adapter"`
	RegistryPath        string `json:"registry_path"`
	ScanIntervalSeconds int    `json:"scan_interval_seconds"`

	MQTT   *homeassistant.Config `json:"mqtt,omitempty"`
	Influx *history.Config       `json:"influx,omitempty"`
}

// Load parses the config file, applies defaults and environment
// overrides, and validates. A .env file next to the working directory
// is honored when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it only matters in dev setups.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = DefaultRegistryPath
	}
	if cfg.ScanIntervalSeconds == 0 {
		cfg.ScanIntervalSeconds = DefaultScanIntervalSeconds
	}
}

// applyEnv overlays secrets so they stay out of the config file.
func applyEnv(cfg *Config) {
	if cfg.MQTT != nil {
		if v := os.Getenv("SENSO4S_MQTT_USERNAME"); v != "" {
			cfg.MQTT.Username = v
		}
		if v := os.Getenv("SENSO4S_MQTT_PASSWORD"); v != "" {
			cfg.MQTT.Password = v
		}
	}
	if cfg.Influx != nil {
		if v := os.Getenv("SENSO4S_INFLUX_TOKEN"); v != "" {
			cfg.Influx.Token = v
		}
	}
}

// Validate enforces required invariants beyond JSON typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if cfg.RegistryPath == "" {
		return fmt.Errorf("registry_path is required")
	}
	if cfg.ScanIntervalSeconds < 0 {
		return fmt.Errorf("scan_interval_seconds must not be negative")
	}

	if cfg.MQTT != nil && cfg.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host is required")
	}
	if cfg.Influx != nil {
		if cfg.Influx.URL == "" {
			return fmt.Errorf("influx.url is required")
		}
		if cfg.Influx.Bucket == "" {
			return fmt.Errorf("influx.bucket is required")
		}
	}
	return nil
}
