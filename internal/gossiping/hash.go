// Package gossiping implements the Gossiping Engine: the per-node view of
// the peer set and the map of rumors in flight, and the push/pull
// operations (initiate, receive, collect) that drive their state machines.
package gossiping

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// ContentHash keys a rumor by the content it carries: a CIDv1 wrapping a
// 256-bit BLAKE3 digest. Collision-resistance is what the protocol needs;
// the CID wrapping only buys a self-describing, debug-printable key.
type ContentHash = cid.Cid

// HashContent computes the ContentHash of a gossip payload.
func HashContent(content []byte) (ContentHash, error) {
	sum := blake3.Sum256(content)
	digest, err := mh.Encode(sum[:], mh.BLAKE3)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}
