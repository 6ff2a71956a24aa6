package stepper

import (
	"crypto/ed25519"
	"math/rand"
	"testing"

	"github.com/rumormesh/rumormesh/internal/gossiping"
	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// fakeClient is a single-slot ClientChannel for tests.
type fakeClient struct {
	cmds []ClientCmd
}

func (c *fakeClient) Poll() (ClientCmd, bool) {
	if len(c.cmds) == 0 {
		return nil, false
	}
	cmd := c.cmds[0]
	c.cmds = c.cmds[1:]
	return cmd, true
}

// fakeInbox returns a fixed batch of frames once, then nothing.
type fakeInbox struct {
	frames []InboundFrame
}

func (i *fakeInbox) Poll() []InboundFrame {
	out := i.frames
	i.frames = nil
	return out
}

// fakeOutbox records every frame sent to it.
type fakeOutbox struct {
	sent []struct {
		to    wire.Id
		frame []byte
	}
}

func (o *fakeOutbox) Send(to wire.Id, frame []byte) error {
	o.sent = append(o.sent, struct {
		to    wire.Id
		frame []byte
	}{to, frame})
	return nil
}

func keypair(t *testing.T) (wire.Id, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	id, _ := wire.IdFromPublicKey(pub)
	return id, priv
}

func TestTickDrainsClientAndInitiatesRumor(t *testing.T) {
	ourId, priv := keypair(t)
	peerId, _ := keypair(t)

	engine := gossiping.New(ourId, rand.New(rand.NewSource(1)))
	engine.AddPlayer(peerId)

	client := &fakeClient{cmds: []ClientCmd{NewRumor{Content: []byte("hi")}}}
	outbox := &fakeOutbox{}
	s := New(engine, ourId, priv, client, &fakeInbox{}, outbox, nil, nil, nil)

	s.Tick()

	if engine.ActiveRumorCount() != 1 {
		t.Fatalf("ActiveRumorCount() = %d, want 1 after NewRumor", engine.ActiveRumorCount())
	}
	if len(outbox.sent) != 1 {
		t.Fatalf("len(outbox.sent) = %d, want 1 (the opportunistic push)", len(outbox.sent))
	}
	if outbox.sent[0].to != peerId {
		t.Errorf("push addressed to %v, want %v", outbox.sent[0].to, peerId)
	}
}

func TestTickSetsAbortedOnShutdown(t *testing.T) {
	ourId, priv := keypair(t)
	engine := gossiping.New(ourId, rand.New(rand.NewSource(1)))

	client := &fakeClient{cmds: []ClientCmd{Shutdown{}}}
	s := New(engine, ourId, priv, client, &fakeInbox{}, &fakeOutbox{}, nil, nil, nil)

	s.Tick()
	if !s.Done() {
		t.Fatalf("Done() = false after Shutdown, want true")
	}

	// Subsequent ticks are no-ops.
	s.Tick()
}

func TestTickBusyGateSuppressesPush(t *testing.T) {
	ourId, priv := keypair(t)
	peerId, peerPriv := keypair(t)

	engine := gossiping.New(ourId, rand.New(rand.NewSource(1)))
	engine.AddPlayer(peerId)
	if _, err := engine.InitiateRumor([]byte("local")); err != nil {
		t.Fatalf("InitiateRumor: %v", err)
	}

	// Build an inbound push frame from peerId carrying an unrelated rumor.
	inGossip := wire.Gossip{
		Callee: ourId,
		Caller: peerId,
		Rumors: []wire.RumorEntry{
			{Content: []byte("from-peer"), State: rumor.NewInitiator()},
		},
	}
	frame, err := wire.Serialize(inGossip, true, peerPriv)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	peerPub := mustPublicKey(peerPriv)
	inbox := &fakeInbox{frames: []InboundFrame{
		{SenderId: peerId, SenderPublicKey: peerPub, Bytes: frame},
	}}
	outbox := &fakeOutbox{}

	s := New(engine, ourId, priv, &fakeClient{}, inbox, outbox, nil, nil, nil)
	s.Tick()

	// The busy gate means the tick responds to the peer but does not also
	// originate a separate push this tick.
	if len(outbox.sent) != 1 {
		t.Fatalf("len(outbox.sent) = %d, want exactly 1 (response only, no extra push)", len(outbox.sent))
	}
	if outbox.sent[0].to != peerId {
		t.Errorf("sent to %v, want response addressed to caller %v", outbox.sent[0].to, peerId)
	}
}

func mustPublicKey(priv ed25519.PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}
