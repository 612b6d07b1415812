// Package blockstore defines the capability set the distrox core consumes
// from the underlying content-addressed transport, without committing to
// any one implementation. See blockstore/ipfslite for a libp2p/boxo-backed
// implementation and blockstore/memstore for an in-process test double.
package blockstore

import (
	"context"
	"errors"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
	"github.com/libp2p/go-libp2p/core/peer"
)

// ErrNotFound is returned by GetDAG/GetBlob when the requested CID is
// absent from the store and cannot be fetched from any connected peer.
var ErrNotFound = errors.New("blockstore: not found")

// ErrDialFailure is returned by Connect when the peer could not be
// reached.
var ErrDialFailure = errors.New("blockstore: dial failure")

// ErrPublishFailure is returned by PubSubPublish when best-effort fan-out
// could not be attempted at all (e.g. no topic peers and no transport).
var ErrPublishFailure = errors.New("blockstore: publish failure")

// Message is one inbound pubsub delivery: the peer that (as far as the
// transport can tell) originated it, and the raw payload bytes.
type Message struct {
	From peer.ID
	Data []byte
}

// Subscription is an infinite, unordered, possibly-duplicative stream of
// inbound pubsub messages on one topic. Callers must call Close when done
// to release the underlying transport subscription.
type Subscription interface {
	// Next blocks until a message arrives or ctx is done.
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Store is the capability set the core requires from a content-addressed
// block store and pubsub transport. Implementations must be safe for
// concurrent use; the core never serialises access to a Store behind its
// own lock beyond what a single logical operation needs.
type Store interface {
	// PutDAG stores an already-encoded DAG block (see package codec) and
	// returns its CID. Idempotent: storing equal bytes twice returns the
	// same CID both times without error.
	PutDAG(ctx context.Context, block []byte) (cid.Cid, error)

	// GetDAG fetches the raw bytes of a previously stored DAG block.
	// Returns ErrNotFound if the CID is not resolvable.
	GetDAG(ctx context.Context, c cid.Cid) ([]byte, error)

	// PutBlob stores a raw byte stream and returns its CID. Idempotent
	// like PutDAG.
	PutBlob(ctx context.Context, r io.Reader) (cid.Cid, error)

	// GetBlob returns a reader over a previously stored blob. Returns
	// ErrNotFound if the CID is not resolvable. Callers must Close it.
	GetBlob(ctx context.Context, c cid.Cid) (io.ReadCloser, error)

	// Pin prevents c (and anything transitively stored under it, for
	// DAG blocks) from being garbage collected until unpinned.
	Pin(ctx context.Context, c cid.Cid) error

	// PubSubSubscribe joins topic and returns a stream of inbound
	// messages, including ones this process itself publishes.
	PubSubSubscribe(ctx context.Context, topic string) (Subscription, error)

	// PubSubPublish best-effort fans data out to topic.
	PubSubPublish(ctx context.Context, topic string, data []byte) error

	// Connect dials a peer described by addr (a multiaddr, optionally
	// carrying a /p2p/<peer-id> suffix).
	Connect(ctx context.Context, addr string) error

	// OwnID is this process's transport peer identifier.
	OwnID() peer.ID

	// OwnAddresses is the current set of addresses this process is
	// reachable on. May change over the Store's lifetime.
	OwnAddresses() []multiaddr.Multiaddr

	// Close releases all transport resources. No method above may be
	// called after Close returns.
	Close() error
}
