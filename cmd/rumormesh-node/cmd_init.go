package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rumormesh/rumormesh/internal/config"
	"github.com/rumormesh/rumormesh/internal/identity"
)

func runInit(args []string) {
	if err := doInit(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dirFlag := fs.String("dir", "", "config directory (default: ~/.config/rumormesh)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	configDir := *dirFlag
	if configDir == "" {
		d, err := config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("cannot determine config directory: %w", err)
		}
		configDir = d
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config already exists: %s\nDelete it first if you want to reinitialize", configFile)
	}

	fmt.Fprintf(stdout, "Creating config directory: %s\n", configDir)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	keyFile := filepath.Join(configDir, "node.key")
	id, err := identity.LoadOrCreateIdentity(keyFile)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	fmt.Fprintf(stdout, "Generated identity: %s\n", id.Id.String())

	authKeysFile := filepath.Join(configDir, "authorized_peers")
	if err := os.WriteFile(authKeysFile, []byte("# one hex-encoded 32-byte id per line\n"), 0600); err != nil {
		return fmt.Errorf("failed to create authorized_peers file: %w", err)
	}

	cfg := config.NodeConfig{
		Version: config.CurrentConfigVersion,
		Identity: config.IdentityConfig{
			KeyFile: "node.key",
		},
		Network: config.NetworkConfig{
			ListenAddresses: []string{
				"/ip4/0.0.0.0/tcp/0",
				"/ip4/0.0.0.0/udp/0/quic-v1",
			},
		},
		Peers: config.PeersConfig{
			AuthorizedKeysFile:     "authorized_peers",
			EnableConnectionGating: true,
		},
		WorkerPool: config.WorkerPoolConfig{
			Size: config.DefaultWorkerPoolSize,
		},
		Telemetry: config.TelemetryConfig{
			Metrics: config.MetricsConfig{
				Enabled:       true,
				ListenAddress: "127.0.0.1:9091",
			},
			Audit: config.AuditConfig{Enabled: true},
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(stdout, "Wrote config: %s\n", configFile)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Add peers with: rumormesh-node peer add <id>")
	fmt.Fprintln(stdout, "Then start with: rumormesh-node run")
	return nil
}
