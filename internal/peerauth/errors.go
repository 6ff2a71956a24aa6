// Package peerauth manages the authorized_peers file and the libp2p
// connection gater that enforces it.
package peerauth

import "errors"

var (
	// ErrInvalidId is returned when a line's Id fails to parse as a
	// 32-byte hex-encoded Ed25519 public key.
	ErrInvalidId = errors.New("peerauth: invalid id")

	// ErrIdNotFound is returned by SetPeerAttr/RemovePeer when the
	// target Id is not present in the authorized_peers file.
	ErrIdNotFound = errors.New("peerauth: id not found")

	// ErrIdAlreadyAuthorized is returned by AddPeer for a duplicate Id.
	ErrIdAlreadyAuthorized = errors.New("peerauth: id already authorized")
)
