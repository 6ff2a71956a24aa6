package stepper

import (
	"math/rand"
	"testing"

	"github.com/rumormesh/rumormesh/internal/gossiping"
	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// S3: a node that has processed Shutdown stops touching its engine or
// sending anything, even when frames keep arriving in its inbox afterward.
func TestShutdownStopsProcessingFurtherFrames(t *testing.T) {
	ourId, priv := keypair(t)
	peerId, peerPriv := keypair(t)

	engine := gossiping.New(ourId, rand.New(rand.NewSource(1)))
	engine.AddPlayer(peerId)

	client := &fakeClient{cmds: []ClientCmd{Shutdown{}}}
	inbox := &fakeInbox{}
	outbox := &fakeOutbox{}
	s := New(engine, ourId, priv, client, inbox, outbox, nil, nil, nil)

	s.Tick()
	if !s.Done() {
		t.Fatal("expected Done() after Shutdown")
	}
	before := engine.ActiveRumorCount()

	late := wire.Gossip{
		Callee: ourId,
		Caller: peerId,
		Rumors: []wire.RumorEntry{{Content: []byte("late"), State: rumor.NewInitiator()}},
	}
	frame, err := wire.Serialize(late, true, peerPriv)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	inbox.frames = []InboundFrame{{SenderId: peerId, SenderPublicKey: mustPublicKey(peerPriv), Bytes: frame}}

	s.Tick()
	if !s.Done() {
		t.Fatal("stepper should remain aborted")
	}
	if got := engine.ActiveRumorCount(); got != before {
		t.Fatalf("ActiveRumorCount changed after shutdown: before=%d after=%d", before, got)
	}
	if len(outbox.sent) != 0 {
		t.Fatalf("an aborted stepper must not send, got %d frame(s)", len(outbox.sent))
	}
}

// S4: a frame claiming to come from victimId's identity but actually signed
// with the attacker's own key fails signature verification and never
// touches the receiving engine's rumor map.
func TestHandleInboundFrameRejectsForgedSender(t *testing.T) {
	ourId, priv := keypair(t)
	attackerId, attackerPriv := keypair(t)
	victimId, _ := keypair(t)

	engine := gossiping.New(ourId, rand.New(rand.NewSource(1)))
	engine.AddPlayer(attackerId)
	engine.AddPlayer(victimId)

	forged := wire.Gossip{
		Callee: ourId,
		Caller: victimId,
		Rumors: []wire.RumorEntry{{Content: []byte("forged"), State: rumor.NewInitiator()}},
	}
	frame, err := wire.Serialize(forged, true, attackerPriv)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	inbox := &fakeInbox{frames: []InboundFrame{
		{SenderId: victimId, SenderPublicKey: victimId.PublicKey(), Bytes: frame},
	}}
	outbox := &fakeOutbox{}
	s := New(engine, ourId, priv, &fakeClient{}, inbox, outbox, nil, nil, nil)

	s.Tick()

	if engine.ActiveRumorCount() != 0 {
		t.Fatalf("ActiveRumorCount() = %d, want 0: a forged frame must not be integrated", engine.ActiveRumorCount())
	}
	if len(outbox.sent) != 0 {
		t.Fatalf("no response should be sent for a rejected frame, got %d", len(outbox.sent))
	}
}
