package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Property 14: Archive then a corrupting write then Rollback restores the
// config byte-for-byte.
func TestArchiveThenRollbackRestoresByteForByte(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	good := []byte("version: 1\nidentity:\n  key_file: good.key\n")

	if err := os.WriteFile(cfgPath, good, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Archive(cfgPath); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !HasArchive(cfgPath) {
		t.Fatal("HasArchive() = false after Archive")
	}

	corrupt := []byte("this is not valid yaml at all: [[[")
	if err := os.WriteFile(cfgPath, corrupt, 0600); err != nil {
		t.Fatalf("WriteFile corrupt: %v", err)
	}

	if err := Rollback(cfgPath); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	restored, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("ReadFile after rollback: %v", err)
	}
	if !bytes.Equal(restored, good) {
		t.Fatalf("restored = %q, want byte-for-byte %q", restored, good)
	}
}

func TestRollbackWithNoArchiveErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := Rollback(cfgPath)
	if !errors.Is(err, ErrNoArchive) {
		t.Fatalf("Rollback() error = %v, want ErrNoArchive", err)
	}
}

func TestHasArchiveFalseWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if HasArchive(cfgPath) {
		t.Fatal("HasArchive() = true with no prior Archive call")
	}
}
