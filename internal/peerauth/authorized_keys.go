package peerauth

import (
	"bufio"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/rumormesh/rumormesh/internal/wire"
)

// LoadAuthorizedKeys loads and parses an authorized_peers file.
// Format: <hex-encoded 32-byte id> [key=value attrs...] [# comment]
func LoadAuthorizedKeys(path string) (map[wire.Id]bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open authorized_peers file: %w", err)
	}
	defer file.Close()

	authorized := make(map[wire.Id]bool)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		idStr, _, _ := parseLine(scanner.Text())
		if idStr == "" {
			continue
		}

		id, err := wire.ParseId(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid id at line %d: %s: %w", lineNum, idStr, err)
		}

		authorized[id] = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading authorized_peers file: %w", err)
	}

	return authorized, nil
}

// IsAuthorized reports whether id is in the authorized set.
func IsAuthorized(id wire.Id, authorized map[wire.Id]bool) bool {
	return authorized[id]
}

// ToPeerIDSet converts a set of authorized wire.Ids into the libp2p peer.ID
// set the A7 transport's ConnectionGater needs, since a libp2p peer.ID is a
// multihash over the same Ed25519 public key rather than the raw key itself.
func ToPeerIDSet(authorized map[wire.Id]bool) (map[peer.ID]bool, error) {
	out := make(map[peer.ID]bool, len(authorized))
	for id := range authorized {
		pid, err := idToPeerID(id)
		if err != nil {
			return nil, err
		}
		out[pid] = true
	}
	return out, nil
}

func idToPeerID(id wire.Id) (peer.ID, error) {
	pub, err := crypto.UnmarshalEd25519PublicKey(id.PublicKey())
	if err != nil {
		return "", fmt.Errorf("peerauth: unmarshal public key for %s: %w", id, err)
	}
	return peer.IDFromPublicKey(pub)
}
