// Package p2ptransport implements the A7 real transport: a libp2p host
// (TCP + QUIC) carrying one long-lived stream per peer under protocol ID
// /rumormesh/gossip/1.0.0, each stream framing length-prefixed CBOR
// Transmission bytes. It satisfies the same ClientChannel/PeerInbox/
// PeerOutbox boundary the in-process internal/memtransport implements.
package p2ptransport

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"

	"github.com/rumormesh/rumormesh/internal/stepper"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// GossipProtocolID is the libp2p protocol ID for gossip streams.
const GossipProtocolID = protocol.ID("/rumormesh/gossip/1.0.0")

// maxFrameSize bounds a single length-prefixed frame, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const maxFrameSize = 16 << 20 // 16 MiB

// Config configures a Network.
type Config struct {
	ListenAddresses []string
	Gater           connmgr.ConnectionGater // optional, nil disables gating
	InboxSize       int                     // default 256
}

// Network is a libp2p-backed transport for one node.
type Network struct {
	host host.Host

	mu        sync.RWMutex
	peerAddrs map[wire.Id]peer.AddrInfo
	streams   map[peer.ID]network.Stream

	inbox chan stepper.InboundFrame
}

// New creates a libp2p host identified by priv and installs the gossip
// stream handler.
func New(priv ed25519.PrivateKey, cfg Config) (*Network, error) {
	p2pPriv, err := crypto.UnmarshalEd25519PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("p2ptransport: convert identity key: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(p2pPriv),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
	}
	if len(cfg.ListenAddresses) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddresses...))
	}
	if cfg.Gater != nil {
		opts = append(opts, libp2p.ConnectionGater(cfg.Gater))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("p2ptransport: create libp2p host: %w", err)
	}

	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 256
	}

	n := &Network{
		host:      h,
		peerAddrs: make(map[wire.Id]peer.AddrInfo),
		streams:   make(map[peer.ID]network.Stream),
		inbox:     make(chan stepper.InboundFrame, inboxSize),
	}
	h.SetStreamHandler(GossipProtocolID, n.handleStream)
	return n, nil
}

// Host returns the underlying libp2p host.
func (n *Network) Host() host.Host {
	return n.host
}

// RegisterPeer records the dial address for a peer Id, so Outbox.Send can
// open a stream to it on first use.
func (n *Network) RegisterPeer(id wire.Id, addrInfo peer.AddrInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peerAddrs[id] = addrInfo
	n.host.Peerstore().AddAddrs(addrInfo.ID, addrInfo.Addrs, peerstore.PermanentAddrTTL)
}

// handleStream reads length-prefixed frames from an inbound stream until it
// closes, pushing each onto the shared inbox.
func (n *Network) handleStream(s network.Stream) {
	defer s.Close()

	remotePub := s.Conn().RemotePublicKey()
	if remotePub == nil {
		slog.Warn("gossip stream: no remote public key", "peer", s.Conn().RemotePeer())
		return
	}
	raw, err := remotePub.Raw()
	if err != nil {
		slog.Warn("gossip stream: cannot read remote public key", "error", err)
		return
	}
	senderId, ok := wire.IdFromPublicKey(ed25519.PublicKey(raw))
	if !ok {
		slog.Warn("gossip stream: remote key is not an ed25519 key", "peer", s.Conn().RemotePeer())
		return
	}

	for {
		frame, err := readFrame(s)
		if err != nil {
			if err != io.EOF {
				slog.Warn("gossip stream: read error", "peer", senderId, "error", err)
			}
			return
		}
		select {
		case n.inbox <- stepper.InboundFrame{SenderId: senderId, SenderPublicKey: ed25519.PublicKey(raw), Bytes: frame}:
		default:
			slog.Warn("gossip inbox full, dropping frame", "peer", senderId)
		}
	}
}

// Inbox returns the stepper.PeerInbox view of this network.
func (n *Network) Inbox() stepper.PeerInbox {
	return (*inbox)(n)
}

// Outbox returns the stepper.PeerOutbox view of this network.
func (n *Network) Outbox() stepper.PeerOutbox {
	return (*outbox)(n)
}

// Close shuts down the host and all open streams.
func (n *Network) Close() error {
	n.mu.Lock()
	for _, s := range n.streams {
		s.Close()
	}
	n.mu.Unlock()
	return n.host.Close()
}

type inbox Network

func (i *inbox) Poll() []stepper.InboundFrame {
	n := (*Network)(i)
	var out []stepper.InboundFrame
	for {
		select {
		case f := <-n.inbox:
			out = append(out, f)
		default:
			return out
		}
	}
}

type outbox Network

func (o *outbox) Send(recipient wire.Id, frame []byte) error {
	n := (*Network)(o)
	s, err := n.streamFor(recipient)
	if err != nil {
		return err
	}
	if err := writeFrame(s, frame); err != nil {
		n.mu.Lock()
		delete(n.streams, s.Conn().RemotePeer())
		n.mu.Unlock()
		s.Close()
		return fmt.Errorf("p2ptransport: write frame to %s: %w", recipient, err)
	}
	return nil
}

func (n *Network) streamFor(recipient wire.Id) (network.Stream, error) {
	n.mu.RLock()
	addrInfo, known := n.peerAddrs[recipient]
	n.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotRegistered, recipient)
	}

	n.mu.RLock()
	s, ok := n.streams[addrInfo.ID]
	n.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := n.host.NewStream(context.Background(), addrInfo.ID, GossipProtocolID)
	if err != nil {
		return nil, fmt.Errorf("p2ptransport: open stream to %s: %w", recipient, err)
	}

	n.mu.Lock()
	n.streams[addrInfo.ID] = s
	n.mu.Unlock()
	return s, nil
}

// writeFrame writes a length-prefixed frame: a big-endian uint32 length
// followed by the frame bytes.
func writeFrame(w io.Writer, frame []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("p2ptransport: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
