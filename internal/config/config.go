package config

import "time"

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is the unified configuration for a slick-node process: the
// gossip engine's tunables, the read-only introspection daemon, and
// opt-in telemetry. All fields are mutable before the process starts
// serving; nothing here is re-read at runtime.
type NodeConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Gossip    GossipConfig    `yaml:"gossip"`
	Daemon    DaemonConfig    `yaml:"daemon,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// GossipConfig mirrors gossip.Config field for field; it exists
// separately so the YAML shape doesn't need to know how
// pkg/slick/gossip represents durations internally.
type GossipConfig struct {
	Port          uint16        `yaml:"port,omitempty"`
	ListenAddr    string        `yaml:"listen_address,omitempty"`
	Period        time.Duration `yaml:"-"`
	TTL           time.Duration `yaml:"-"`
	ConnExpThresh time.Duration `yaml:"-"`
	Seeds         []string      `yaml:"seeds,omitempty"`
	HistoryPath   string        `yaml:"history_path,omitempty"`
}

// DaemonConfig controls the local read-only introspection API.
type DaemonConfig struct {
	// Enabled turns on the Unix-socket HTTP server. Default: false — a
	// library embedder drives the Discovery interface directly and has
	// no need for it; slick-node turns it on.
	Enabled bool `yaml:"enabled"`

	// SocketPath is the Unix domain socket the daemon listens on.
	SocketPath string `yaml:"socket_path,omitempty"`
}

// TelemetryConfig holds observability settings. Disabled by default,
// matching the teacher's opt-in telemetry convention.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty"` // default: "127.0.0.1:9091"
}

// DefaultNodeConfig returns the configuration slick-node runs with when
// no config file is given.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Version: CurrentConfigVersion,
		Gossip: GossipConfig{
			Port:          18888,
			Period:        60 * time.Second,
			TTL:           8 * time.Hour,
			ConnExpThresh: 10 * time.Second,
		},
		Daemon: DaemonConfig{
			Enabled:    true,
			SocketPath: "/tmp/slick-node.sock",
		},
	}
}
