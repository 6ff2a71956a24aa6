package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDoRun_ConfigNotFound(t *testing.T) {
	err := doRun([]string{"--config", "/tmp/nonexistent-rumormesh-test/config.yaml"}, os.Stdout)
	if err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestDoRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "rumormesh.yaml")
	if err := os.WriteFile(cfgFile, []byte("this: is: not: valid: yaml: [[["), 0600); err != nil {
		t.Fatal(err)
	}

	err := doRun([]string{"--config", cfgFile}, os.Stdout)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestDoRun_MissingAuthorizedKeysFile(t *testing.T) {
	// A config that loads and validates, but whose authorized_peers file
	// does not exist, should fail during node construction rather than
	// during config loading.
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "rumormesh.yaml")
	cfg := `version: 1
identity:
  key_file: "node.key"
network:
  listen_addresses:
    - "/ip4/127.0.0.1/tcp/0"
peers:
  authorized_keys_file: "does-not-exist"
  enable_connection_gating: true
worker_pool:
  size: 4
telemetry:
  metrics:
    enabled: false
  audit:
    enabled: false
`
	if err := os.WriteFile(cfgFile, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	err := doRun([]string{"--config", cfgFile}, os.Stdout)
	if err == nil {
		t.Fatal("expected error for missing authorized_peers file")
	}
}

func TestRunRun_Error(t *testing.T) {
	code, exited := captureExit(func() {
		runRun([]string{"--config", "/tmp/nonexistent-rumormesh-test/config.yaml"})
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}
