package gossiping

import (
	"math"
	"math/rand"

	"github.com/rumormesh/rumormesh/internal/rumor"
	"github.com/rumormesh/rumormesh/internal/wire"
)

// idSet is a set of player Ids, used for the oblivious/informed partition.
type idSet map[wire.Id]struct{}

func newIdSet(ids ...wire.Id) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id wire.Id) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) remove(id wire.Id) { delete(s, id) }
func (s idSet) add(id wire.Id)    { s[id] = struct{}{} }

// rumorProgress is a rumor's state on this node: its payload, the partition
// of peers known at birth, and the cutoffs derived from the cluster size at
// that moment.
type rumorProgress struct {
	content          []byte
	state            rumor.State
	informedPlayers  idSet
	obliviousPlayers idSet
	maxBAge          rumor.Age
	maxCRounds       rumor.Round
	maxRounds        rumor.Round
}

// cutoffs derives { max_b_age, max_c_rounds, max_rounds } from the cluster
// size n, per §3: max(1, ceil(ln n)) and max(1, ceil(ln ln n)).
func cutoffs(n int) (rumor.Age, rumor.Round, rumor.Round) {
	lnN := math.Log(float64(n))
	maxBAge := ceilAtLeastOne(lnN)

	var lnLnN float64
	if lnN > 0 {
		lnLnN = math.Log(lnN)
	} else {
		lnLnN = math.Inf(-1)
	}
	maxCRounds := ceilAtLeastOne(lnLnN)

	return rumor.Age(maxBAge), rumor.Round(maxCRounds), rumor.Round(maxCRounds)
}

func ceilAtLeastOne(x float64) int {
	if math.IsInf(x, -1) || math.IsNaN(x) || x < 1 {
		return 1
	}
	return int(math.Ceil(x))
}

// Gossiping holds a node's view of the protocol: its own id, the peer set,
// and every rumor it has heard about, keyed by ContentHash.
type Gossiping struct {
	ourId  wire.Id
	peers  idSet
	rumors map[ContentHash]*rumorProgress

	// rumorOrder preserves insertion order so CollectGossip iterates rumors
	// deterministically, matching the reference implementation's map-order
	// iteration being replaced by an explicit, reproducible order.
	rumorOrder []ContentHash

	rng *rand.Rand

	// onAdvance, if set, is invoked with a rumor's new state every time
	// Advance runs. It exists purely so a caller can wire per-state advance
	// counters (A4) without this package importing a metrics library.
	onAdvance func(rumor.State)

	// onFirstInform, if set, is invoked with the sender's Id and the
	// rumor's starting round whenever a rumor is learned about for the
	// first time from a peer. It exists so a caller can wire per-peer
	// first-informer telemetry (A5) without this package depending on it.
	onFirstInform func(informer wire.Id, round rumor.Round)
}

// SetAdvanceHook installs fn to be called with a rumor's new state each
// time that rumor's state machine advances. Pass nil to disable.
func (g *Gossiping) SetAdvanceHook(fn func(rumor.State)) {
	g.onAdvance = fn
}

// SetFirstInformHook installs fn to be called whenever a peer is the first
// to tell this node about a given rumor. Pass nil to disable.
func (g *Gossiping) SetFirstInformHook(fn func(informer wire.Id, round rumor.Round)) {
	g.onFirstInform = fn
}

// stateRound extracts the round counter carried by a rumor.State, or 0 for
// a state that no longer tracks one (D).
func stateRound(s rumor.State) rumor.Round {
	switch st := s.(type) {
	case rumor.B:
		return st.Round
	case rumor.C:
		return st.Round
	default:
		return 0
	}
}

// New creates an empty Gossiping engine for ourId. rng may be nil, in which
// case a process-global source is used; tests typically pass a
// deterministically seeded one.
func New(ourId wire.Id, rng *rand.Rand) *Gossiping {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Gossiping{
		ourId:  ourId,
		peers:  idSet{},
		rumors: map[ContentHash]*rumorProgress{},
		rng:    rng,
	}
}

// AddPlayer inserts id into the peer set. Idempotent; does not affect any
// rumor's oblivious/informed partition, which was fixed at that rumor's
// birth.
func (g *Gossiping) AddPlayer(id wire.Id) {
	g.peers.add(id)
}

// RemovePlayer removes id from the peer set. Does not mutate existing
// rumors.
func (g *Gossiping) RemovePlayer(id wire.Id) {
	delete(g.peers, id)
}

// PeerCount reports the current size of the peer set, excluding self.
func (g *Gossiping) PeerCount() int {
	return len(g.peers)
}

func (g *Gossiping) peersExcept(excluded ...wire.Id) idSet {
	exclude := newIdSet(excluded...)
	s := make(idSet, len(g.peers))
	for id := range g.peers {
		if !exclude.has(id) {
			s[id] = struct{}{}
		}
	}
	return s
}

// InitiateRumor starts disseminating content as a new rumor. A no-op if
// content's hash is already known (the rumor is already in flight here).
func (g *Gossiping) InitiateRumor(content []byte) (ContentHash, error) {
	h, err := HashContent(content)
	if err != nil {
		return ContentHash{}, err
	}
	if _, ok := g.rumors[h]; ok {
		return h, nil
	}

	maxBAge, maxCRounds, maxRounds := cutoffs(len(g.peers))
	g.rumors[h] = &rumorProgress{
		content:          content,
		state:            rumor.NewInitiator(),
		informedPlayers:  idSet{},
		obliviousPlayers: g.peersExcept(g.ourId),
		maxBAge:          maxBAge,
		maxCRounds:       maxCRounds,
		maxRounds:        maxRounds,
	}
	g.rumorOrder = append(g.rumorOrder, h)
	return h, nil
}

// ReceiveGossip integrates the rumors carried by an inbound Gossip, and for
// a push, returns the response Gossip to send back (nil if there is
// nothing to say).
func (g *Gossiping) ReceiveGossip(in wire.Gossip, isPush bool) (*wire.Gossip, error) {
	var echoed []wire.RumorEntry

	for _, entry := range in.Rumors {
		h, err := HashContent(entry.Content)
		if err != nil {
			return nil, err
		}

		rp, known := g.rumors[h]
		if known {
			if b, ok := rp.state.(rumor.B); ok {
				peerAge, ok := entry.State.GossipAge()
				if !ok {
					peerAge = rumor.MaxAge
				}
				rp.state = rumor.ReceiveFrom(b, in.Caller, peerAge)
			}
		} else {
			peerAge, ok := entry.State.GossipAge()
			if !ok {
				peerAge = rumor.MaxAge
			}
			maxBAge, maxCRounds, maxRounds := cutoffs(len(g.peers))
			rp = &rumorProgress{
				content:          entry.Content,
				state:            rumor.NewFromPeer(peerAge, maxBAge),
				informedPlayers:  newIdSet(in.Caller),
				obliviousPlayers: g.peersExcept(in.Caller, g.ourId),
				maxBAge:          maxBAge,
				maxCRounds:       maxCRounds,
				maxRounds:        maxRounds,
			}
			g.rumors[h] = rp
			g.rumorOrder = append(g.rumorOrder, h)
			if g.onFirstInform != nil {
				g.onFirstInform(in.Caller, stateRound(rp.state))
			}
		}

		if _, done := rp.state.(rumor.D); isPush && !done {
			echoed = append(echoed, wire.RumorEntry{Content: rp.content, State: rp.state})
		}
	}

	if !isPush {
		return nil, nil
	}

	rumors := echoed
	rumors = append(rumors, g.additionalRumorsFor(in.Caller)...)
	if len(rumors) == 0 {
		return nil, nil
	}
	return &wire.Gossip{Callee: in.Caller, Caller: g.ourId, Rumors: rumors}, nil
}

// additionalRumorsFor advances and appends any active rumor that callee is
// still oblivious to, moving callee to informed as each is emitted. Shared
// logic between a push response and CollectGossip.
func (g *Gossiping) additionalRumorsFor(callee wire.Id) []wire.RumorEntry {
	var out []wire.RumorEntry
	for _, h := range g.rumorOrder {
		rp := g.rumors[h]
		if _, done := rp.state.(rumor.D); done {
			continue
		}

		rp.state = rumor.Advance(rp.state, rp.maxBAge, rp.maxCRounds, rp.maxRounds)
		if g.onAdvance != nil {
			g.onAdvance(rp.state)
		}
		if _, done := rp.state.(rumor.D); done {
			continue
		}

		if !rp.obliviousPlayers.has(callee) {
			continue
		}
		out = append(out, wire.RumorEntry{Content: rp.content, State: rp.state})
		rp.obliviousPlayers.remove(callee)
		rp.informedPlayers.add(callee)
	}
	return out
}

// CollectGossip opportunistically produces one outbound push, addressed to
// a single uniformly-chosen peer, or nil if no rumor has anything new to
// say to any peer.
func (g *Gossiping) CollectGossip() *wire.Gossip {
	order := g.shuffledPeers()
	for _, callee := range order {
		rumors := g.additionalRumorsFor(callee)
		if len(rumors) > 0 {
			return &wire.Gossip{Callee: callee, Caller: g.ourId, Rumors: rumors}
		}
	}
	return nil
}

func (g *Gossiping) shuffledPeers() []wire.Id {
	ids := make([]wire.Id, 0, len(g.peers))
	for id := range g.peers {
		ids = append(ids, id)
	}
	g.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// ActiveRumorCount reports how many known rumors have not yet reached D.
func (g *Gossiping) ActiveRumorCount() int {
	n := 0
	for _, rp := range g.rumors {
		if _, done := rp.state.(rumor.D); !done {
			n++
		}
	}
	return n
}

// RumorState reports the current state of a known rumor, for tests and
// telemetry.
func (g *Gossiping) RumorState(h ContentHash) (rumor.State, bool) {
	rp, ok := g.rumors[h]
	if !ok {
		return nil, false
	}
	return rp.state, true
}
