package peerauth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// AuthDecisionFunc is called on every inbound auth decision with the peer ID
// (truncated) and result ("allow" or "deny"). Used for metrics and audit
// logging without creating a circular dependency on internal/metrics.
type AuthDecisionFunc func(peerID, result string)

// AuthorizedPeerGater implements libp2p's ConnectionGater interface. It
// rejects inbound connections from peers whose Id is not in the
// authorized_peers set, before the gossip handshake ever runs.
type AuthorizedPeerGater struct {
	authorizedPeers map[peer.ID]bool
	peerExpiry      map[peer.ID]time.Time // zero = never expires
	onDecision      AuthDecisionFunc       // nil-safe
	mu              sync.RWMutex
}

// NewAuthorizedPeerGater creates a new connection gater with the given authorized peers.
func NewAuthorizedPeerGater(authorizedPeers map[peer.ID]bool) *AuthorizedPeerGater {
	return &AuthorizedPeerGater{
		authorizedPeers: authorizedPeers,
		peerExpiry:      make(map[peer.ID]time.Time),
	}
}

// InterceptPeerDial allows all outbound dials; gating only applies inbound.
func (g *AuthorizedPeerGater) InterceptPeerDial(p peer.ID) bool {
	return true
}

// InterceptAddrDial allows all outbound dials; gating only applies inbound.
func (g *AuthorizedPeerGater) InterceptAddrDial(id peer.ID, ma multiaddr.Multiaddr) bool {
	return true
}

// InterceptAccept allows the raw connection through; the real check happens
// in InterceptSecured once the peer's identity is verified.
func (g *AuthorizedPeerGater) InterceptAccept(cm network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured is called after the crypto handshake, once the peer's
// identity is verified. This is the primary authorization check point.
func (g *AuthorizedPeerGater) InterceptSecured(dir network.Direction, p peer.ID, addr network.ConnMultiaddrs) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if dir != network.DirInbound {
		return true
	}

	short := p.String()[:16] + "..."

	if !g.authorizedPeers[p] {
		slog.Warn("inbound connection denied", "peer", short)
		if g.onDecision != nil {
			g.onDecision(short, "deny")
		}
		return false
	}

	if exp, ok := g.peerExpiry[p]; ok && !exp.IsZero() && time.Now().After(exp) {
		slog.Warn("inbound connection denied (expired)", "peer", short)
		if g.onDecision != nil {
			g.onDecision(short, "deny")
		}
		return false
	}

	slog.Info("inbound connection allowed", "peer", short)
	if g.onDecision != nil {
		g.onDecision(short, "allow")
	}
	return true
}

// InterceptUpgraded allows every upgraded connection through; no additional
// checks are needed at this stage.
func (g *AuthorizedPeerGater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}

// UpdateAuthorizedPeers replaces the authorized peer set (hot-reload support).
func (g *AuthorizedPeerGater) UpdateAuthorizedPeers(authorizedPeers map[peer.ID]bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizedPeers = authorizedPeers
	slog.Info("updated authorized peers list", "count", len(authorizedPeers))
}

// IsAuthorized reports whether a peer ID is currently authorized.
func (g *AuthorizedPeerGater) IsAuthorized(p peer.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authorizedPeers[p]
}

// SetDecisionCallback sets a callback invoked on every inbound auth decision.
func (g *AuthorizedPeerGater) SetDecisionCallback(fn AuthDecisionFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDecision = fn
}

// SetPeerExpiry sets an expiration time for an authorized peer. Zero time
// means never expires.
func (g *AuthorizedPeerGater) SetPeerExpiry(p peer.ID, expiresAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if expiresAt.IsZero() {
		delete(g.peerExpiry, p)
	} else {
		g.peerExpiry[p] = expiresAt
	}
}
