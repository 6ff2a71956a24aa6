package wire

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

// kind discriminates a Transmission's two variants.
type kind byte

const (
	kindPush kind = iota
	kindResponse
)

// Transmission is the signed frame exchanged between peers: a Gossip
// payload plus an Ed25519 signature over its SHA3-512 pre-hash, tagged as
// either a Push or a Response.
type Transmission struct {
	kind    kind
	payload []byte
	sig     [ed25519.SignatureSize]byte
}

type transmissionWire struct {
	_       struct{} `cbor:",toarray"`
	Kind    kind
	Payload []byte
	Sig     []byte
}

// preHash is the SHA3-512 digest signed in place of payload itself, since
// the stdlib ed25519 package exposes no pluggable pre-hash signer.
func preHash(payload []byte) [64]byte {
	return sha3.Sum512(payload)
}

// Serialize encodes gossip as a Push (isPush true) or Response frame, signed
// with priv, and returns the bytes ready to put on the wire.
func Serialize(g Gossip, isPush bool, priv ed25519.PrivateKey) ([]byte, error) {
	payload, err := encodeGossip(g)
	if err != nil {
		return nil, err
	}
	h := preHash(payload)
	sig := ed25519.Sign(priv, h[:])

	k := kindResponse
	if isPush {
		k = kindPush
	}
	tw := transmissionWire{Kind: k, Payload: payload, Sig: sig}
	return cbor.Marshal(tw)
}

// Deserialize decodes a Transmission frame and verifies its signature
// against senderPublicKey, rejecting the frame with ErrSignatureInvalid if
// verification fails. No Gossip is ever decoded from an unverified frame.
func Deserialize(data []byte, senderPublicKey ed25519.PublicKey) (Transmission, error) {
	var tw transmissionWire
	if err := cbor.Unmarshal(data, &tw); err != nil {
		return Transmission{}, fmt.Errorf("%w: %v", ErrCodecFailure, err)
	}
	if len(tw.Sig) != ed25519.SignatureSize {
		return Transmission{}, ErrCodecFailure
	}
	h := preHash(tw.Payload)
	if !ed25519.Verify(senderPublicKey, h[:], tw.Sig) {
		return Transmission{}, ErrSignatureInvalid
	}

	var t Transmission
	t.kind = tw.Kind
	t.payload = tw.Payload
	copy(t.sig[:], tw.Sig)
	return t, nil
}

// GetValue decodes the Gossip carried by an already-verified Transmission,
// along with whether it was a push.
func GetValue(t Transmission) (Gossip, bool, error) {
	g, err := decodeGossip(t.payload)
	if err != nil {
		return Gossip{}, false, err
	}
	return g, t.kind == kindPush, nil
}
