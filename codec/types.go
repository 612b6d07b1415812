// Package codec defines the on-disk, content-addressed shape of a distrox
// timeline and the deterministic DAG-CBOR encoding rules used to compute
// and verify its identity.
package codec

import (
	"time"

	"github.com/ipfs/go-cid"
)

// ProtocolVersion is the current Node.Version value this codec emits.
// Nodes carrying any other version are still readable (traversal follows
// their Parents regardless) but are never produced by PostTextNode.
const ProtocolVersion = "0"

// Node is a vertex in a timeline DAG: it names zero or more parent Nodes
// and exactly one Payload.
type Node struct {
	Version string    `json:"version"`
	Parents []cid.Cid `json:"parents"`
	Payload cid.Cid   `json:"payload"`
}

// Payload describes a single post: its MIME type, the UTC instant it was
// authored, and a link to the raw content blob.
type Payload struct {
	MIME      string    `json:"mime"`
	Timestamp time.Time `json:"timestamp"`
	Content   cid.Cid   `json:"content"`
}

// HasParent reports whether c appears in n.Parents.
func (n Node) HasParent(c cid.Cid) bool {
	for _, p := range n.Parents {
		if p.Equals(c) {
			return true
		}
	}
	return false
}

// IsRoot reports whether n has no parents.
func (n Node) IsRoot() bool {
	return len(n.Parents) == 0
}
