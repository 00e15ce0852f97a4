package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions returns an error if a config file has any
// group or world permission bit set (anything beyond 0600-style owner
// access). A file that cannot be stat'ed passes; the caller reports it.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// rawGossipConfig mirrors GossipConfig but with string durations, since
// yaml.v3 has no built-in time.Duration unmarshaler.
type rawGossipConfig struct {
	Port          uint16   `yaml:"port,omitempty"`
	ListenAddr    string   `yaml:"listen_address,omitempty"`
	Period        string   `yaml:"period,omitempty"`
	TTL           string   `yaml:"ttl,omitempty"`
	ConnExpThresh string   `yaml:"conn_exp_thresh,omitempty"`
	Seeds         []string `yaml:"seeds,omitempty"`
	HistoryPath   string   `yaml:"history_path,omitempty"`
}

type rawNodeConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Gossip    rawGossipConfig `yaml:"gossip"`
	Daemon    DaemonConfig    `yaml:"daemon,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// parseDuration parses s, falling back to def when s is empty.
func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

// LoadNodeConfig loads slick-node configuration from a YAML file, filling
// in DefaultNodeConfig's values for anything left unset.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	defaults := DefaultNodeConfig()
	raw := rawNodeConfig{Daemon: defaults.Daemon, Telemetry: defaults.Telemetry}
	raw.Gossip.Port = defaults.Gossip.Port
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	version := raw.Version
	if version == 0 {
		version = CurrentConfigVersion
	}
	if version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade slick-node", ErrConfigVersionTooNew, version, CurrentConfigVersion)
	}

	period, err := parseDuration("gossip.period", raw.Gossip.Period, defaults.Gossip.Period)
	if err != nil {
		return nil, err
	}
	ttl, err := parseDuration("gossip.ttl", raw.Gossip.TTL, defaults.Gossip.TTL)
	if err != nil {
		return nil, err
	}
	connExpThresh, err := parseDuration("gossip.conn_exp_thresh", raw.Gossip.ConnExpThresh, defaults.Gossip.ConnExpThresh)
	if err != nil {
		return nil, err
	}

	cfg := &NodeConfig{
		Version: version,
		Gossip: GossipConfig{
			Port:          raw.Gossip.Port,
			ListenAddr:    raw.Gossip.ListenAddr,
			Period:        period,
			TTL:           ttl,
			ConnExpThresh: connExpThresh,
			Seeds:         raw.Gossip.Seeds,
			HistoryPath:   raw.Gossip.HistoryPath,
		},
		Daemon:    raw.Daemon,
		Telemetry: raw.Telemetry,
	}
	return cfg, nil
}

// ValidateNodeConfig validates a loaded NodeConfig.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Gossip.Port == 0 && cfg.Gossip.ListenAddr == "" {
		return fmt.Errorf("gossip: either port or listen_address is required")
	}
	if cfg.Gossip.Period <= 0 {
		return fmt.Errorf("gossip.period must be positive")
	}
	if cfg.Gossip.TTL <= 0 {
		return fmt.Errorf("gossip.ttl must be positive")
	}
	if cfg.Daemon.Enabled && cfg.Daemon.SocketPath == "" {
		return fmt.Errorf("daemon.socket_path is required when daemon.enabled is true")
	}
	return nil
}

// FindConfigFile searches for a slick-node config file in standard
// locations. Search order: explicitPath (if given), ./slick-node.yaml,
// ~/.config/slick-node/config.yaml, /etc/slick-node/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"slick-node.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "slick-node", "config.yaml"))
	}

	searchPaths = append(searchPaths, filepath.Join("/etc", "slick-node", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nuse --config <path>, or run with no config for defaults", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// DefaultConfigDir returns the default slick-node config directory
// (~/.config/slick-node).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "slick-node"), nil
}

// ResolveConfigPaths resolves a relative daemon socket path to be
// relative to the config file's directory.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	if cfg.Daemon.SocketPath != "" && !filepath.IsAbs(cfg.Daemon.SocketPath) {
		cfg.Daemon.SocketPath = filepath.Join(configDir, cfg.Daemon.SocketPath)
	}
	if cfg.Gossip.HistoryPath != "" && !filepath.IsAbs(cfg.Gossip.HistoryPath) {
		cfg.Gossip.HistoryPath = filepath.Join(configDir, cfg.Gossip.HistoryPath)
	}
}
