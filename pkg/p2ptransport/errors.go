package p2ptransport

import "errors"

var (
	// ErrPeerNotRegistered is returned by Outbox.Send when no address is
	// known for the recipient Id.
	ErrPeerNotRegistered = errors.New("p2ptransport: peer not registered")
)
