package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions warns if a config file has overly permissive
// permissions (group/world readable). Config files may reference key and
// authorized-peer file paths.
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

// LoadNodeConfig loads a node's configuration from a YAML file, applying
// the version gate and default worker pool size.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Default version to 1 for configs written before versioning was added.
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade rumormesh-node", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = DefaultWorkerPoolSize
	}

	return &cfg, nil
}

// ValidateNodeConfig validates a node's configuration.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if len(cfg.Network.ListenAddresses) == 0 {
		return fmt.Errorf("network.listen_addresses must contain at least one address")
	}
	if cfg.Peers.EnableConnectionGating && cfg.Peers.AuthorizedKeysFile == "" {
		return fmt.Errorf("peers.authorized_keys_file is required when connection gating is enabled")
	}
	if cfg.WorkerPool.Size <= 0 {
		return fmt.Errorf("worker_pool.size must be positive")
	}
	return nil
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory, so a config in
// ~/.config/rumormesh/ can reference key and authorized-peer files with
// relative paths.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
	if cfg.Peers.AuthorizedKeysFile != "" && !filepath.IsAbs(cfg.Peers.AuthorizedKeysFile) {
		cfg.Peers.AuthorizedKeysFile = filepath.Join(configDir, cfg.Peers.AuthorizedKeysFile)
	}
}

// FindConfigFile searches for a rumormesh config file in standard
// locations. Search order: explicitPath (if given), ./rumormesh.yaml,
// ~/.config/rumormesh/config.yaml, /etc/rumormesh/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		"rumormesh.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "rumormesh", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("/etc", "rumormesh", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'rumormesh-node init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// DefaultConfigDir returns the default rumormesh config directory
// (~/.config/rumormesh).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "rumormesh"), nil
}
