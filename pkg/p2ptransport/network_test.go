package p2ptransport

import (
	"bytes"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/rumormesh/rumormesh/internal/wire"
)

func genIdentity(t *testing.T) (ed25519.PrivateKey, wire.Id) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	id, ok := wire.IdFromPublicKey(pub)
	if !ok {
		t.Fatalf("IdFromPublicKey failed")
	}
	return priv, id
}

// newListeningNetwork creates a Network listening on localhost TCP.
func newListeningNetwork(t *testing.T) (*Network, wire.Id) {
	t.Helper()
	priv, id := genIdentity(t)
	n, err := New(priv, Config{ListenAddresses: []string{"/ip4/127.0.0.1/tcp/0"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n, id
}

func addrInfoOf(n *Network) peer.AddrInfo {
	return peer.AddrInfo{ID: n.Host().ID(), Addrs: n.Host().Addrs()}
}

func TestNetworkNew(t *testing.T) {
	priv, _ := genIdentity(t)
	n, err := New(priv, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if n.Host() == nil {
		t.Fatal("Host() returned nil")
	}
}

func TestNetworkNewInvalidKey(t *testing.T) {
	_, err := New(ed25519.PrivateKey{}, Config{})
	if err == nil {
		t.Error("expected error for malformed private key")
	}
}

func TestNetworkNewWithListenAddresses(t *testing.T) {
	n, _ := newListeningNetwork(t)
	if len(n.Host().Addrs()) == 0 {
		t.Error("expected at least one listen address")
	}
}

func TestNetworkSendAndReceive(t *testing.T) {
	a, aId := newListeningNetwork(t)
	b, bId := newListeningNetwork(t)

	a.RegisterPeer(bId, addrInfoOf(b))
	b.RegisterPeer(aId, addrInfoOf(a))

	payload := []byte("hello rumor")
	if err := a.Outbox().Send(bId, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		polled := b.Inbox().Poll()
		for _, f := range polled {
			if f.SenderId != aId {
				t.Errorf("SenderId = %x, want %x", f.SenderId, aId)
			}
			if !bytes.Equal(f.Bytes, payload) {
				t.Errorf("Bytes = %q, want %q", f.Bytes, payload)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for frame to arrive")
}

func TestNetworkSendUnregisteredPeer(t *testing.T) {
	a, _ := newListeningNetwork(t)
	_, bId := genIdentity(t)

	err := a.Outbox().Send(bId, []byte("x"))
	if err == nil {
		t.Fatal("expected error sending to unregistered peer")
	}
}

func TestNetworkSendReusesStream(t *testing.T) {
	a, aId := newListeningNetwork(t)
	b, bId := newListeningNetwork(t)

	a.RegisterPeer(bId, addrInfoOf(b))
	b.RegisterPeer(aId, addrInfoOf(a))

	for i := 0; i < 3; i++ {
		if err := a.Outbox().Send(bId, []byte("msg")); err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
	}

	a.mu.RLock()
	streamCount := len(a.streams)
	a.mu.RUnlock()
	if streamCount != 1 {
		t.Errorf("open streams = %d, want 1 (reused)", streamCount)
	}
}

func TestPeerInboxPollDrainsAndEmpties(t *testing.T) {
	n, _ := newListeningNetwork(t)
	if polled := n.Inbox().Poll(); len(polled) != 0 {
		t.Errorf("Poll on idle inbox = %v, want empty", polled)
	}
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("a length-prefixed frame")

	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("readFrame = %q, want %q", got, payload)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	oversize := make([]byte, 0)
	lenBuf := []byte{0xff, 0xff, 0xff, 0xff}
	buf.Write(lenBuf)
	buf.Write(oversize)

	if _, err := readFrame(&buf); err == nil {
		t.Error("expected error for oversize frame length prefix")
	}
}

func TestReadFrameShortInput(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0})

	if _, err := readFrame(&buf); err == nil {
		t.Error("expected error for truncated length prefix")
	}
}
