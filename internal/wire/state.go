package wire

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/rumormesh/rumormesh/internal/rumor"
)

// state tags identify the RumorState variant on the wire.
const (
	stateTagB byte = iota
	stateTagC
	stateTagD
)

// playerAgeEntry is one (Id, Age) pair from a B-state's player_ages map,
// carried on the wire as a sorted array so the encoding is deterministic
// without relying on canonical map-key ordering.
type playerAgeEntry struct {
	_   struct{} `cbor:",toarray"`
	Id  Id
	Age rumor.Age
}

// stateWire is the on-wire shape of a RumorState. Only the fields relevant
// to Tag are populated; the rest are zero.
type stateWire struct {
	_              struct{} `cbor:",toarray"`
	Tag            byte
	Round          rumor.Round
	Age            rumor.Age
	PlayerAges     []playerAgeEntry
	RoundsInStateB rumor.Round
}

// EncodeState produces the deterministic wire representation of a RumorState.
func EncodeState(s rumor.State) ([]byte, error) {
	var sw stateWire
	switch st := s.(type) {
	case rumor.B:
		sw.Tag = stateTagB
		sw.Round = st.Round
		sw.Age = st.Age
		for id, age := range st.PlayerAges {
			sw.PlayerAges = append(sw.PlayerAges, playerAgeEntry{Id: Id(id), Age: age})
		}
		sort.Slice(sw.PlayerAges, func(i, j int) bool {
			return sw.PlayerAges[i].Id.Less(sw.PlayerAges[j].Id)
		})
	case rumor.C:
		sw.Tag = stateTagC
		sw.Round = st.Round
		sw.RoundsInStateB = st.RoundsInStateB
	case rumor.D:
		sw.Tag = stateTagD
	default:
		return nil, fmt.Errorf("wire: unknown rumor state %T", s)
	}
	return cbor.Marshal(sw)
}

// DecodeState reconstructs a RumorState from its wire representation.
func DecodeState(data []byte) (rumor.State, error) {
	var sw stateWire
	if err := cbor.Unmarshal(data, &sw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodecFailure, err)
	}
	switch sw.Tag {
	case stateTagB:
		playerAges := make(map[[32]byte]rumor.Age, len(sw.PlayerAges))
		for _, e := range sw.PlayerAges {
			playerAges[[32]byte(e.Id)] = e.Age
		}
		return rumor.B{Round: sw.Round, Age: sw.Age, PlayerAges: playerAges}, nil
	case stateTagC:
		return rumor.C{Round: sw.Round, RoundsInStateB: sw.RoundsInStateB}, nil
	case stateTagD:
		return rumor.D{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown state tag %d", ErrCodecFailure, sw.Tag)
	}
}
