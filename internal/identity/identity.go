// Package identity manages a node's long-term Ed25519 signing key: the
// keypair that derives its wire.Id and signs every Transmission it sends.
package identity

import (
	"fmt"
	"os"
	"runtime"

	"crypto/ed25519"

	"github.com/rumormesh/rumormesh/internal/wire"
)

// Identity is a node's long-term keypair and the Id derived from it.
type Identity struct {
	Id         wire.Id
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// CheckKeyFilePermissions verifies that a key file is not readable by group
// or others.
func CheckKeyFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil // Windows file permissions work differently
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat key file %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadOrCreateIdentity loads an existing Ed25519 private key from path, or
// generates and persists a fresh one (mode 0600) if none exists.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	if data, err := os.ReadFile(path); err == nil {
		if err := CheckKeyFilePermissions(path); err != nil {
			return nil, err
		}
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("key file %s has unexpected length %d, want %d", path, len(data), ed25519.PrivateKeySize)
		}
		priv := ed25519.PrivateKey(data)
		return fromPrivateKey(priv)
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key to %s: %w", path, err)
	}
	return fromPrivateKey(priv)
}

func fromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: unexpected public key type %T", priv.Public())
	}
	id, ok := wire.IdFromPublicKey(pub)
	if !ok {
		return nil, fmt.Errorf("identity: public key has unexpected length %d", len(pub))
	}
	return &Identity{Id: id, PublicKey: pub, PrivateKey: priv}, nil
}
