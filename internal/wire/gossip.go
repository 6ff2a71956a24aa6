package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rumormesh/rumormesh/internal/rumor"
)

// RumorEntry is one rumor carried inside a Gossip: the opaque content and
// the sender's view of its progress.
type RumorEntry struct {
	Content []byte
	State   rumor.State
}

// rumorEntryWire is RumorEntry's on-wire shape; State is pre-encoded to
// bytes so the outer CBOR document doesn't need to know about rumor.State.
type rumorEntryWire struct {
	_       struct{} `cbor:",toarray"`
	Content []byte
	State   []byte
}

// Gossip is a single peer-to-peer message, used both for a push and for the
// response it may provoke; the push/response discriminator lives in the
// enclosing Transmission.
type Gossip struct {
	Callee Id
	Caller Id
	Rumors []RumorEntry
}

type gossipWire struct {
	_      struct{} `cbor:",toarray"`
	Callee Id
	Caller Id
	Rumors []rumorEntryWire
}

func encodeGossip(g Gossip) ([]byte, error) {
	gw := gossipWire{Callee: g.Callee, Caller: g.Caller}
	for i, r := range g.Rumors {
		sb, err := EncodeState(r.State)
		if err != nil {
			return nil, fmt.Errorf("wire: encode rumor %d: %w", i, err)
		}
		gw.Rumors = append(gw.Rumors, rumorEntryWire{Content: r.Content, State: sb})
	}
	return cbor.Marshal(gw)
}

func decodeGossip(data []byte) (Gossip, error) {
	var gw gossipWire
	if err := cbor.Unmarshal(data, &gw); err != nil {
		return Gossip{}, fmt.Errorf("%w: %v", ErrCodecFailure, err)
	}
	g := Gossip{Callee: gw.Callee, Caller: gw.Caller}
	for i, rw := range gw.Rumors {
		st, err := DecodeState(rw.State)
		if err != nil {
			return Gossip{}, fmt.Errorf("wire: decode rumor %d: %w", i, err)
		}
		g.Rumors = append(g.Rumors, RumorEntry{Content: rw.Content, State: st})
	}
	return g, nil
}
