// Package rumor implements the per-rumor state machine: the A/B/C/D phases
// of the push-pull gossip protocol, the median-rule update used in the
// exponential-growth phase, and the quadratic-shrinking tail that bounds
// total traffic per rumor.
package rumor

// Age is the median-rule counter used in state B. MaxAge signals that a
// peer has already moved into state C.
type Age uint8

// MaxAge is the sentinel age reported by a peer in state C or D.
const MaxAge Age = 255

// Round counts advances of a single rumor's state, independent of any
// other rumor or any global clock.
type Round uint8

// State is the closed sum type { B, C, D }. A is not represented: a rumor
// absent from a Gossiping engine's map is implicitly in state A. Only the
// variants in this package implement State; the unexported marker method
// keeps the set closed to external packages.
type State interface {
	isState()

	// GossipAge reports the age to attach when gossiping this rumor: the
	// B-phase counter, MaxAge in C, or false in D (D rumors are never
	// transmitted).
	GossipAge() (Age, bool)
}

// B is the exponential-growth phase.
type B struct {
	Round      Round
	Age        Age
	PlayerAges map[[32]byte]Age
}

// C is the quadratic-shrinking phase.
type C struct {
	RoundsInStateB Round
	Round          Round
}

// D is terminal: the rumor is never sent or accepted for transition again.
type D struct{}

func (B) isState() {}
func (C) isState() {}
func (D) isState() {}

func (b B) GossipAge() (Age, bool) { return b.Age, true }
func (C) GossipAge() (Age, bool)   { return MaxAge, true }
func (D) GossipAge() (Age, bool)   { return 0, false }

// NewInitiator returns the state for a rumor we originate: state B, round 0,
// age 1, no reported peer ages yet.
func NewInitiator() State {
	return B{Round: 0, Age: 1, PlayerAges: map[[32]byte]Age{}}
}

// NewFromPeer returns the state adopted when a peer first informs us of a
// rumor we didn't know about. If the peer's reported age indicates it is
// still in B, we start fresh in B; otherwise we start in C, since the
// cluster has likely already made substantial progress on this rumor.
func NewFromPeer(peerAge Age, maxBAge Age) State {
	if peerAge < maxBAge {
		return NewInitiator()
	}
	return C{RoundsInStateB: 0, Round: 0}
}

// ReceiveFrom records the age most recently reported by playerID for this
// rumor. Only meaningful in state B; a no-op in C or D. Receiving the same
// rumor multiple times from the same peer before the next advance is
// tolerated — the latest report wins.
func ReceiveFrom(s State, playerID [32]byte, peerAge Age) State {
	b, ok := s.(B)
	if !ok {
		return s
	}
	if b.PlayerAges == nil {
		b.PlayerAges = map[[32]byte]Age{}
	}
	b.PlayerAges[playerID] = peerAge
	return b
}

// Advance consumes the current state and returns the next one, applying the
// median rule in B and the round-cap checks in B and C. A B->B transition
// clears the per-round PlayerAges map.
func Advance(s State, maxBAge Age, maxCRounds Round, maxRounds Round) State {
	switch st := s.(type) {
	case B:
		return advanceB(st, maxBAge, maxRounds)
	case C:
		return advanceC(st, maxCRounds, maxRounds)
	case D:
		return st
	default:
		return st
	}
}

func advanceB(b B, maxBAge Age, maxRounds Round) State {
	b.Round++
	if b.Round >= maxRounds {
		return D{}
	}

	var less, greaterOrEqual int
	for _, peerAge := range b.PlayerAges {
		switch {
		case peerAge < b.Age:
			less++
		case peerAge >= maxBAge:
			// A peer reporting an age at or beyond the B ceiling is
			// already in C; follow it there immediately.
			return C{RoundsInStateB: b.Round, Round: 0}
		default:
			greaterOrEqual++
		}
	}
	if greaterOrEqual > less {
		b.Age++
	}

	if b.Age >= maxBAge {
		return C{RoundsInStateB: b.Round, Round: 0}
	}
	return B{Round: b.Round, Age: b.Age, PlayerAges: map[[32]byte]Age{}}
}

func advanceC(c C, maxCRounds Round, maxRounds Round) State {
	c.Round++
	if c.Round+c.RoundsInStateB >= maxRounds {
		return D{}
	}
	if c.Round >= maxCRounds {
		return D{}
	}
	return c
}
