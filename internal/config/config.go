package config

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is a rumormesh node's on-disk configuration.
type NodeConfig struct {
	Version    int              `yaml:"version,omitempty"`
	Identity   IdentityConfig   `yaml:"identity"`
	Network    NetworkConfig    `yaml:"network"`
	Peers      PeersConfig      `yaml:"peers"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool,omitempty"`
	Telemetry  TelemetryConfig  `yaml:"telemetry,omitempty"`
}

// IdentityConfig holds identity-related configuration.
type IdentityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// NetworkConfig holds transport-related configuration.
type NetworkConfig struct {
	ListenAddresses []string `yaml:"listen_addresses"`
}

// PeersConfig holds the authorized peer set and gating configuration.
type PeersConfig struct {
	AuthorizedKeysFile     string `yaml:"authorized_keys_file"`
	EnableConnectionGating bool   `yaml:"enable_connection_gating"`
}

// WorkerPoolConfig bounds how many nodes may tick concurrently.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// TelemetryConfig holds observability settings. All features are disabled
// by default (opt-in).
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Audit   AuditConfig   `yaml:"audit,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // default: "127.0.0.1:9091"
}

// AuditConfig controls structured audit logging.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultWorkerPoolSize is used when WorkerPool.Size is unset or non-positive.
const DefaultWorkerPoolSize = 8
