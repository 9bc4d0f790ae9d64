package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadConfigDefaults(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
postgres:
  dsn: "postgres://localhost/presence"
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Service != "presence-service" || cfg.Logging.Env != "dev" || cfg.Logging.Backend != "std" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.EventTTL() != 10*time.Second {
		t.Fatalf("expected 10s event TTL, got %v", cfg.EventTTL())
	}
	if cfg.FlyingMessageTTL() != 7*time.Second {
		t.Fatalf("expected 7s flying message TTL, got %v", cfg.FlyingMessageTTL())
	}
	if cfg.HeartbeatInterval() != 5*time.Second {
		t.Fatalf("expected 5s heartbeat, got %v", cfg.HeartbeatInterval())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
postgres:
  dsn: "postgres://localhost/presence"
sync:
  eventTTL: 3s
  flyingMessageTTL: 2s
  heartbeatInterval: 1s
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EventTTL() != 3*time.Second || cfg.FlyingMessageTTL() != 2*time.Second || cfg.HeartbeatInterval() != time.Second {
		t.Fatalf("overrides not applied: %v %v %v", cfg.EventTTL(), cfg.FlyingMessageTTL(), cfg.HeartbeatInterval())
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8080"
`)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for missing grpc/postgres")
	}
}
