// Package memtransport implements the stepper's ClientChannel, PeerInbox,
// and PeerOutbox boundary interfaces over in-process Go channels, standing
// in for a real transport in tests and in the single-process demo harness.
package memtransport

import (
	"crypto/ed25519"
	"errors"

	"github.com/rumormesh/rumormesh/internal/stepper"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// ErrQueueFull is returned by PeerOutbox.Send when the recipient's inbox
// channel is saturated; it is a TransportTransient error per §7.
var ErrQueueFull = errors.New("memtransport: peer inbox queue is full")

const defaultQueueSize = 64

// ClientChannel is a buffered, single-producer/single-consumer queue of
// stepper.ClientCmd values.
type ClientChannel struct {
	ch chan stepper.ClientCmd
}

// NewClientChannel creates a ClientChannel with room for queueSize pending
// commands.
func NewClientChannel(queueSize int) *ClientChannel {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &ClientChannel{ch: make(chan stepper.ClientCmd, queueSize)}
}

// Submit enqueues cmd, blocking only if the queue is full — callers outside
// the stepper's own goroutine are expected to use this, never Poll.
func (c *ClientChannel) Submit(cmd stepper.ClientCmd) {
	c.ch <- cmd
}

// Poll implements stepper.ClientChannel: a non-blocking dequeue.
func (c *ClientChannel) Poll() (stepper.ClientCmd, bool) {
	select {
	case cmd := <-c.ch:
		return cmd, true
	default:
		return nil, false
	}
}

type inboundMessage struct {
	senderId wire.Id
	senderPk ed25519.PublicKey
	bytes    []byte
}

// Inbox is one node's incoming-frame queue, written by its peers'
// Outboxes and drained by its own stepper.
type Inbox struct {
	ch chan inboundMessage
}

// NewInbox creates an Inbox with room for queueSize pending frames.
func NewInbox(queueSize int) *Inbox {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Inbox{ch: make(chan inboundMessage, queueSize)}
}

func (in *Inbox) deliver(senderId wire.Id, senderPk ed25519.PublicKey, frame []byte) error {
	select {
	case in.ch <- inboundMessage{senderId: senderId, senderPk: senderPk, bytes: frame}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll implements stepper.PeerInbox: drains every frame currently queued.
func (in *Inbox) Poll() []stepper.InboundFrame {
	var out []stepper.InboundFrame
	for {
		select {
		case msg := <-in.ch:
			out = append(out, stepper.InboundFrame{
				SenderId:        msg.senderId,
				SenderPublicKey: msg.senderPk,
				Bytes:           msg.bytes,
			})
		default:
			return out
		}
	}
}

// Network is a shared registry of in-process nodes, used to wire each
// node's Outbox to its peers' Inboxes without a real transport.
type Network struct {
	ourId   wire.Id
	ourPk   ed25519.PublicKey
	inboxes map[wire.Id]*Inbox
}

// NewNetwork creates a Network in which frames sent by ourId are signed as
// coming from ourPk, and delivered to whichever inbox is registered for the
// recipient.
func NewNetwork(ourId wire.Id, ourPk ed25519.PublicKey) *Network {
	return &Network{ourId: ourId, ourPk: ourPk, inboxes: map[wire.Id]*Inbox{}}
}

// Register makes inbox reachable as peerId's delivery target.
func (n *Network) Register(peerId wire.Id, inbox *Inbox) {
	n.inboxes[peerId] = inbox
}

// Outbox implements stepper.PeerOutbox by delivering directly into the
// recipient's registered Inbox.
func (n *Network) Outbox() *Outbox {
	return &Outbox{net: n}
}

// Outbox is a Network-bound implementation of stepper.PeerOutbox.
type Outbox struct {
	net *Network
}

// Send implements stepper.PeerOutbox.
func (o *Outbox) Send(recipient wire.Id, frame []byte) error {
	inbox, ok := o.net.inboxes[recipient]
	if !ok {
		return errors.New("memtransport: no inbox registered for recipient")
	}
	return inbox.deliver(o.net.ourId, o.net.ourPk, frame)
}
