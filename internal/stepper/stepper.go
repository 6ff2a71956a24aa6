// Package stepper implements the Gossip Stepper: the cooperative task that
// drives a Gossiping engine's tick procedure against a client command
// channel and a peer transport, without ever blocking inside a tick.
package stepper

import (
	"crypto/ed25519"
	"errors"
	"log/slog"
	"time"

	"github.com/rumormesh/rumormesh/internal/gossiping"
	"github.com/rumormesh/rumormesh/internal/metrics"
	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// ClientCmd is one command a node's operator may submit.
type ClientCmd interface {
	isClientCmd()
}

// NewRumor asks the node to originate content as a fresh rumor.
type NewRumor struct {
	Content []byte
}

// Shutdown asks the node to stop ticking at the next tick boundary.
type Shutdown struct{}

func (NewRumor) isClientCmd() {}
func (Shutdown) isClientCmd() {}

// ClientChannel yields zero or one ClientCmd per non-blocking poll.
type ClientChannel interface {
	Poll() (ClientCmd, bool)
}

// InboundFrame is one complete frame received from a remote peer, still
// unverified.
type InboundFrame struct {
	SenderId        wire.Id
	SenderPublicKey ed25519.PublicKey
	Bytes           []byte
}

// PeerInbox yields zero or more InboundFrame entries per non-blocking poll.
type PeerInbox interface {
	Poll() []InboundFrame
}

// PeerOutbox accepts a frame addressed to recipient. Send is non-blocking
// and may fail with a transient transport error; the stepper logs and
// drops on failure, per the error taxonomy's TransportTransient class.
type PeerOutbox interface {
	Send(recipient wire.Id, frame []byte) error
}

// runState is the stepper's two-state machine: Running or Aborted.
type runState int

const (
	running runState = iota
	aborted
)

// Stepper wraps a Gossiping engine as a cooperative task. Tick is the only
// entry point; it never blocks.
type Stepper struct {
	engine *gossiping.Gossiping
	priv   ed25519.PrivateKey
	ourId  wire.Id

	client ClientChannel
	inbox  PeerInbox
	outbox PeerOutbox

	metrics *metrics.Metrics
	audit   *metrics.AuditLogger
	log     *slog.Logger

	state runState
}

// New creates a Stepper driving engine with priv as the node's signing key.
// m and audit may be nil (metrics/audit become no-ops); log defaults to
// slog.Default() if nil.
func New(engine *gossiping.Gossiping, ourId wire.Id, priv ed25519.PrivateKey, client ClientChannel, inbox PeerInbox, outbox PeerOutbox, m *metrics.Metrics, audit *metrics.AuditLogger, log *slog.Logger) *Stepper {
	if log == nil {
		log = slog.Default()
	}
	return &Stepper{
		engine:  engine,
		priv:    priv,
		ourId:   ourId,
		client:  client,
		inbox:   inbox,
		outbox:  outbox,
		metrics: m,
		audit:   audit,
		log:     log,
		state:   running,
	}
}

// Done reports whether the stepper has observed Shutdown and will no longer
// tick.
func (s *Stepper) Done() bool {
	return s.state == aborted
}

// Tick runs the three non-blocking phases in order: drain client, drain
// peer inbox, then — only if the tick was otherwise idle — attempt one
// outbound push. Returns immediately once aborted.
func (s *Stepper) Tick() {
	if s.state == aborted {
		return
	}

	start := time.Now()
	defer s.observeTickDuration(start)

	s.drainClient()
	if s.state == aborted {
		return
	}

	busy := s.drainInbox()

	if !busy {
		s.maybePush()
	}

	s.observeActiveRumors()
}

func (s *Stepper) drainClient() {
	for {
		cmd, ok := s.client.Poll()
		if !ok {
			return
		}
		switch c := cmd.(type) {
		case NewRumor:
			if _, err := s.engine.InitiateRumor(c.Content); err != nil {
				s.log.Error("initiate rumor failed", "error", err)
			}
		case Shutdown:
			s.state = aborted
			return
		}
	}
}

// drainInbox processes every pending inbound frame and reports whether at
// least one was received — the "busy" gate that caps a tick to at most one
// outbound frame.
func (s *Stepper) drainInbox() bool {
	frames := s.inbox.Poll()
	for _, f := range frames {
		s.handleInboundFrame(f)
	}
	return len(frames) > 0
}

func (s *Stepper) handleInboundFrame(f InboundFrame) {
	t, err := wire.Deserialize(f.Bytes, f.SenderPublicKey)
	if err != nil {
		if errors.Is(err, wire.ErrSignatureInvalid) {
			s.incFramesRejected(metrics.ReasonSignatureInvalid)
			if s.audit != nil {
				s.audit.SignatureRejected(f.SenderId.String())
			}
		} else {
			s.incFramesRejected(metrics.ReasonCodecFailure)
			if s.audit != nil {
				s.audit.CodecFailure(f.SenderId.String())
			}
		}
		s.log.Warn("dropped inbound frame", "peer", f.SenderId.String(), "error", err)
		return
	}

	g, isPush, err := wire.GetValue(t)
	if err != nil {
		s.incFramesRejected(metrics.ReasonCodecFailure)
		s.log.Warn("dropped inbound frame", "peer", f.SenderId.String(), "error", err)
		return
	}

	resp, err := s.engine.ReceiveGossip(g, isPush)
	if err != nil {
		s.log.Error("receive_gossip failed", "error", err)
		return
	}
	if resp == nil {
		return
	}

	frame, err := wire.Serialize(*resp, false, s.priv)
	if err != nil {
		s.log.Error("serialize response failed", "error", err)
		return
	}
	if err := s.outbox.Send(resp.Callee, frame); err != nil {
		s.log.Warn("send response failed", "peer", resp.Callee.String(), "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ResponsesSentTotal.Inc()
	}
}

func (s *Stepper) maybePush() {
	g := s.engine.CollectGossip()
	if g == nil {
		return
	}
	frame, err := wire.Serialize(*g, true, s.priv)
	if err != nil {
		s.log.Error("serialize push failed", "error", err)
		return
	}
	if err := s.outbox.Send(g.Callee, frame); err != nil {
		s.log.Warn("send push failed", "peer", g.Callee.String(), "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.PushesSentTotal.Inc()
	}
}

func (s *Stepper) incFramesRejected(reason string) {
	if s.metrics != nil {
		s.metrics.FramesRejectedTotal.WithLabelValues(reason).Inc()
	}
}

func (s *Stepper) observeTickDuration(start time.Time) {
	if s.metrics != nil {
		s.metrics.TickDurationSeconds.Observe(time.Since(start).Seconds())
	}
}

func (s *Stepper) observeActiveRumors() {
	if s.metrics != nil {
		s.metrics.ActiveRumors.Set(float64(s.engine.ActiveRumorCount()))
	}
}

// RumorStateLabel maps a rumor.State to the metrics label it should be
// counted under when it is the destination of an advance. Used to wire
// Gossiping.SetAdvanceHook to RoundsAdvancedTotal at node startup.
func RumorStateLabel(s rumor.State) string {
	switch s.(type) {
	case rumor.B:
		return metrics.StateB
	case rumor.C:
		return metrics.StateC
	default:
		return metrics.StateD
	}
}
