package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("http_addr = %s", cfg.HTTPAddr)
	}
	if cfg.RegistryPath != DefaultRegistryPath {
		t.Errorf("registry_path = %s", cfg.RegistryPath)
	}
	if cfg.ScanIntervalSeconds != DefaultScanIntervalSeconds {
		t.Errorf("scan_interval_seconds = %d", cfg.ScanIntervalSeconds)
	}
	if cfg.MQTT != nil || cfg.Influx != nil {
		t.Errorf("optional sections should stay nil when omitted")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SENSO4S_MQTT_PASSWORD", "hunter2")
	t.Setenv("SENSO4S_INFLUX_TOKEN", "token123")

	cfg, err := Load(writeConfig(t, `{
		"mqtt": {"host": "broker.local"},
		"influx": {"url": "http://influx:8086", "org": "home", "bucket": "gas"}
	}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "hunter2" {
		t.Errorf("mqtt password = %s", cfg.MQTT.Password)
	}
	if cfg.Influx.Token != "token123" {
		t.Errorf("influx token = %s", cfg.Influx.Token)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"mqtt without host", `{"mqtt": {}}`},
		{"influx without url", `{"influx": {"bucket": "gas"}}`},
		{"influx without bucket", `{"influx": {"url": "http://influx:8086"}}`},
		{"negative interval", `{"scan_interval_seconds": -1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
