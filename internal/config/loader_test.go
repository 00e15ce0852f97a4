package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfigYAML = `
gossip:
  port: 18888
  period: "30s"
  ttl: "1h"
  conn_exp_thresh: "5s"
  seeds:
    - "seed1.example.com:18888"
    - "seed2.example.com:18888"
daemon:
  enabled: true
  socket_path: "daemon.sock"
telemetry:
  metrics:
    enabled: true
    listen_address: "127.0.0.1:9091"
`

func writeTestConfig(t testing.TB, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadNodeConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}

	if cfg.Gossip.Port != 18888 {
		t.Errorf("Port = %d, want 18888", cfg.Gossip.Port)
	}
	if cfg.Gossip.Period != 30*time.Second {
		t.Errorf("Period = %v, want 30s", cfg.Gossip.Period)
	}
	if cfg.Gossip.TTL != time.Hour {
		t.Errorf("TTL = %v, want 1h", cfg.Gossip.TTL)
	}
	if len(cfg.Gossip.Seeds) != 2 {
		t.Errorf("Seeds count = %d, want 2", len(cfg.Gossip.Seeds))
	}
	if !cfg.Daemon.Enabled {
		t.Error("Daemon.Enabled should be true")
	}
	if cfg.Daemon.SocketPath != "daemon.sock" {
		t.Errorf("SocketPath = %q, want %q", cfg.Daemon.SocketPath, "daemon.sock")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Telemetry.Metrics.Enabled should be true")
	}
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	_, err := LoadNodeConfig("/nonexistent/path.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadNodeConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "not: [valid: yaml: {{{")

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadNodeConfigInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	yaml := `
gossip:
  port: 18888
  period: "not-a-duration"
`
	path := writeTestConfig(t, dir, yaml)

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadNodeConfigDefaultsFillGaps(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "gossip:\n  port: 18888\n")

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	defaults := DefaultNodeConfig()
	if cfg.Gossip.Period != defaults.Gossip.Period {
		t.Errorf("Period = %v, want default %v", cfg.Gossip.Period, defaults.Gossip.Period)
	}
	if cfg.Gossip.TTL != defaults.Gossip.TTL {
		t.Errorf("TTL = %v, want default %v", cfg.Gossip.TTL, defaults.Gossip.TTL)
	}
}

func TestValidateNodeConfig(t *testing.T) {
	cfg := DefaultNodeConfig()
	if err := ValidateNodeConfig(&cfg); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateNodeConfigMissingFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  NodeConfig
	}{
		{"no port or listen address", NodeConfig{Gossip: GossipConfig{Period: time.Minute, TTL: time.Hour}}},
		{"no period", NodeConfig{Gossip: GossipConfig{Port: 1, TTL: time.Hour}}},
		{"no ttl", NodeConfig{Gossip: GossipConfig{Port: 1, Period: time.Minute}}},
		{"daemon enabled without socket", NodeConfig{
			Gossip: GossipConfig{Port: 1, Period: time.Minute, TTL: time.Hour},
			Daemon: DaemonConfig{Enabled: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateNodeConfig(&tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolveConfigPaths(t *testing.T) {
	cfg := &NodeConfig{Daemon: DaemonConfig{SocketPath: "daemon.sock"}}
	ResolveConfigPaths(cfg, "/home/user/.config/slick-node")

	want := "/home/user/.config/slick-node/daemon.sock"
	if cfg.Daemon.SocketPath != want {
		t.Errorf("SocketPath = %q, want %q", cfg.Daemon.SocketPath, want)
	}
}

func TestResolveConfigPathsAbsolute(t *testing.T) {
	cfg := &NodeConfig{Daemon: DaemonConfig{SocketPath: "/absolute/daemon.sock"}}
	ResolveConfigPaths(cfg, "/home/user/.config/slick-node")

	if cfg.Daemon.SocketPath != "/absolute/daemon.sock" {
		t.Errorf("absolute path should not change: %q", cfg.Daemon.SocketPath)
	}
}

func TestFindConfigFileExplicit(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "gossip:\n  port: 1")

	found, err := FindConfigFile(path)
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if found != path {
		t.Errorf("found = %q, want %q", found, path)
	}
}

func TestFindConfigFileExplicitMissing(t *testing.T) {
	_, err := FindConfigFile("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestFindConfigFileLocalDir(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "slick-node.yaml")
	if err := os.WriteFile(configPath, []byte("gossip:\n  port: 1"), 0600); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(origDir)

	found, err := FindConfigFile("")
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if found != "slick-node.yaml" {
		t.Errorf("found = %q, want %q", found, "slick-node.yaml")
	}
}

func TestConfigVersionDefaultsToCurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	if cfg.Version != CurrentConfigVersion {
		t.Errorf("Version = %d, want %d (default)", cfg.Version, CurrentConfigVersion)
	}
}

func TestConfigVersionFutureRejected(t *testing.T) {
	dir := t.TempDir()
	yaml := "version: 999\n" + testConfigYAML
	path := writeTestConfig(t, dir, yaml)

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Error("expected error for future config version")
	}
}
