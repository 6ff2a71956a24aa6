package stepper

import (
	"math/rand"
	"testing"

	"pgregory.net/rapid"

	"github.com/rumormesh/rumormesh/internal/gossiping"
)

// TestTickSendsAtMostOnePushPerIdleTick checks the busy gate: across any
// sequence of idle ticks (empty inbox), each individual Tick call appends at
// most one frame to the outbox, regardless of how many peers or rumors are
// in flight.
func TestTickSendsAtMostOnePushPerIdleTick(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		peerCount := rapid.IntRange(1, 8).Draw(t, "peerCount")
		rumorCount := rapid.IntRange(0, 4).Draw(t, "rumorCount")
		ticks := rapid.IntRange(1, 30).Draw(t, "ticks")

		ourId, priv := keypair(t)
		engine := gossiping.New(ourId, rand.New(rand.NewSource(1)))
		for i := 0; i < peerCount; i++ {
			peerId, _ := keypair(t)
			engine.AddPlayer(peerId)
		}
		for i := 0; i < rumorCount; i++ {
			if _, err := engine.InitiateRumor([]byte{byte(i)}); err != nil {
				t.Fatalf("InitiateRumor: %v", err)
			}
		}

		outbox := &fakeOutbox{}
		s := New(engine, ourId, priv, &fakeClient{}, &fakeInbox{}, outbox, nil, nil, nil)

		prevSent := 0
		for i := 0; i < ticks; i++ {
			s.Tick()
			sentThisTick := len(outbox.sent) - prevSent
			if sentThisTick > 1 {
				t.Fatalf("tick %d sent %d frames, want at most 1", i, sentThisTick)
			}
			prevSent = len(outbox.sent)
		}
	})
}
