package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
username: alice
servers:
  image: https://image.example.com
  video: https://video.example.com
  fallbacks:
    - https://relay1.example.com
    - https://relay2.example.com
pool-file: /var/lib/relayctl/pool.json
store-path: /var/lib/relayctl/relayctl.db
admission:
  endpoint: https://coordinator.example.com/slot
  cooldown-seconds: 45
failure-sink-url: https://sink.example.com/records
request-timeout-seconds: 90
serve:
  port: 9000
debug: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Username != "alice" {
		t.Fatalf("username = %q", cfg.Username)
	}
	if cfg.Servers.Image != "https://image.example.com" || cfg.Servers.Video != "https://video.example.com" {
		t.Fatalf("unexpected endpoints: %#v", cfg.Servers)
	}
	if len(cfg.Servers.Fallbacks) != 2 {
		t.Fatalf("fallbacks = %#v", cfg.Servers.Fallbacks)
	}
	if cfg.Admission.Endpoint == "" || cfg.Admission.CooldownSeconds != 45 {
		t.Fatalf("unexpected admission config: %#v", cfg.Admission)
	}
	if cfg.RequestTimeoutSeconds != 90 {
		t.Fatalf("request timeout = %d", cfg.RequestTimeoutSeconds)
	}
	if cfg.Serve.Port != 9000 {
		t.Fatalf("serve port = %d", cfg.Serve.Port)
	}
	if !cfg.Debug {
		t.Fatal("debug not set")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "username: [broken")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "username: before\n")

	updates := make(chan *Config, 1)
	closer, err := Watch(path, func(cfg *Config) {
		select {
		case updates <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer func() { _ = closer() }()

	if err = os.WriteFile(path, []byte("username: after\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		if cfg.Username != "after" {
			t.Fatalf("reloaded username = %q", cfg.Username)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}
}
