package wire

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
)

// Id is a player's identity: the raw 32-byte Ed25519 public key. Equality
// and ordering are byte-lexicographic, which is why this is a fixed-size
// array rather than a libp2p peer.ID (a multihash-wrapped, base58-rendered
// identifier with no native ordering).
type Id [ed25519.PublicKeySize]byte

// IdFromPublicKey derives an Id from an Ed25519 public key.
func IdFromPublicKey(pub ed25519.PublicKey) (Id, bool) {
	var id Id
	if len(pub) != ed25519.PublicKeySize {
		return id, false
	}
	copy(id[:], pub)
	return id, true
}

// PublicKey returns the Id as an ed25519.PublicKey suitable for verification.
func (id Id) PublicKey() ed25519.PublicKey {
	pk := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pk, id[:])
	return pk
}

// Less reports whether id sorts before other under byte-lexicographic order.
func (id Id) Less(other Id) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id Id) String() string {
	return hex.EncodeToString(id[:])
}

// ParseId decodes a hex-encoded 32-byte Id, as used by the authorized_peers
// config file.
func ParseId(s string) (Id, error) {
	var id Id
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errWrongIdLength
	}
	copy(id[:], b)
	return id, nil
}
