// Package traversal implements the lazy, back-pressured DAG walk described
// in spec §4.E: a pull-based sequence over a timeline's Nodes, driven by
// an explicit worklist rather than borrowed iterators, so that no
// iterator-of-iterator concurrency leaks into package client.
package traversal

import (
	"context"
	"errors"
	"io"

	"github.com/ipfs/go-cid"

	"github.com/distrox/distrox/codec"
)

// Done is returned by Walker.Next and Payloads.Next once the worklist is
// exhausted, mirroring io.EOF's role for sequential readers.
var Done = io.EOF

// NodeGetter is the subset of client.Client a Walker needs. It exists so
// this package never has to import client (which itself builds
// ReadNodeChain/ReadPayloadChain on top of this package).
type NodeGetter interface {
	GetNode(ctx context.Context, c cid.Cid) (codec.Node, error)
}

// PayloadGetter additionally resolves a Node's Payload and that Payload's
// content blob, for Payloads.
type PayloadGetter interface {
	NodeGetter
	GetPayload(ctx context.Context, c cid.Cid) (codec.Payload, error)
	GetText(ctx context.Context, c cid.Cid) (string, error)
}

// Walker is a restartable, finite-in-honest-DAGs stream of Nodes reached
// by depth-first traversal from a head CID, in author-recorded parent
// order. It performs no deduplication: a Node reachable via two paths in a
// merge DAG is emitted twice (spec.md §4.E, and Open Question (b) in
// SPEC_FULL.md §9).
type Walker struct {
	get   NodeGetter
	stack []cid.Cid
	done  bool
}

// NewWalker seeds a Walker with a single head CID.
func NewWalker(get NodeGetter, head cid.Cid) *Walker {
	return &Walker{get: get, stack: []cid.Cid{head}}
}

// Next pops a CID, fetches its Node, pushes its parents (in order, so the
// next pop is the last-listed parent — see Note below), and returns the
// Node. Returns Done when the worklist is empty. On a fetch error the
// worklist is cleared (traversal stops) and the error is returned as-is
// (not wrapped in Done).
//
// Note: pushing parents onto a LIFO stack in listed order means they pop
// in reverse order. Spec.md only requires "depth-first in author-recorded
// parent order" for the overall walk shape, not a specific sibling
// left-to-right guarantee; this matches the worklist construction in
// spec.md §4.E step-for-step ("push each parents[i] onto the stack in
// order").
func (w *Walker) Next(ctx context.Context) (codec.Node, error) {
	if w.done || len(w.stack) == 0 {
		w.done = true
		return codec.Node{}, Done
	}
	if err := ctx.Err(); err != nil {
		return codec.Node{}, err
	}

	next := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	node, err := w.get.GetNode(ctx, next)
	if err != nil {
		w.stack = nil
		w.done = true
		return codec.Node{}, err
	}

	for _, p := range node.Parents {
		w.stack = append(w.stack, p)
	}
	if len(w.stack) == 0 {
		w.done = true
	}
	return node, nil
}

// Collect drains w entirely. Useful for tests and small timelines; larger
// consumers should prefer Next directly to preserve back-pressure.
func (w *Walker) Collect(ctx context.Context) ([]codec.Node, error) {
	var out []codec.Node
	for {
		n, err := w.Next(ctx)
		if errors.Is(err, Done) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
}

// Triple is one fully-resolved entry in a payload chain.
type Triple struct {
	Node    codec.Node
	Payload codec.Payload
	Text    string
}

// Payloads composes a Walker with payload and blob resolution.
type Payloads struct {
	w    *Walker
	get  PayloadGetter
	done bool
}

// NewPayloads starts a payload chain from head.
func NewPayloads(get PayloadGetter, head cid.Cid) *Payloads {
	return &Payloads{w: NewWalker(get, head), get: get}
}

// Next resolves the next Node, its Payload, and that Payload's content
// text. Returns Done once the underlying Walker is exhausted.
func (p *Payloads) Next(ctx context.Context) (Triple, error) {
	if p.done {
		return Triple{}, Done
	}
	node, err := p.w.Next(ctx)
	if errors.Is(err, Done) {
		p.done = true
		return Triple{}, Done
	}
	if err != nil {
		p.done = true
		return Triple{}, err
	}

	payload, err := p.get.GetPayload(ctx, node.Payload)
	if err != nil {
		p.done = true
		return Triple{}, err
	}
	text, err := p.get.GetText(ctx, payload.Content)
	if err != nil {
		p.done = true
		return Triple{}, err
	}
	return Triple{Node: node, Payload: payload, Text: text}, nil
}
