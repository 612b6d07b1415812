// Package client is a thin, typed wrapper over blockstore.Store that
// speaks Node/Payload instead of raw bytes.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/distrox/distrox/blockstore"
	"github.com/distrox/distrox/codec"
	"github.com/distrox/distrox/traversal"
)

// ErrEmptyText is returned by PostTextNode when text is empty.
var ErrEmptyText = fmt.Errorf("client: post text must not be empty")

// DefaultMIME is used by PostTextNode for every post it creates.
const DefaultMIME = "text/plain; charset=utf-8"

// Client wraps a blockstore.Store with typed Node/Payload operations. It
// never holds a reference back to a Profile or Reactor — those own a
// Client, not the other way around.
type Client struct {
	store blockstore.Store
	now   func() time.Time
}

// New wraps store. now defaults to time.Now; tests may override it via
// NewWithClock for deterministic timestamps.
func New(store blockstore.Store) *Client {
	return NewWithClock(store, time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(store blockstore.Store, now func() time.Time) *Client {
	return &Client{store: store, now: now}
}

// Store returns the underlying blockstore.Store, for callers (traversal,
// reactor) that need direct access.
func (c *Client) Store() blockstore.Store { return c.store }

// PutText stores text as a raw blob and returns its CID.
func (c *Client) PutText(ctx context.Context, text string) (cid.Cid, error) {
	return c.store.PutBlob(ctx, strings.NewReader(text))
}

// GetText fetches and decodes the blob at c as UTF-8 text.
func (c *Client) GetText(ctx context.Context, blob cid.Cid) (string, error) {
	r, err := c.store.GetBlob(ctx, blob)
	if err != nil {
		return "", err
	}
	defer r.Close()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return sb.String(), nil
}

// PutPayload encodes and stores p, returning its CID.
func (c *Client) PutPayload(ctx context.Context, p codec.Payload) (cid.Cid, error) {
	block, wantCID, err := codec.EncodePayload(p)
	if err != nil {
		return cid.Undef, err
	}
	gotCID, err := c.store.PutDAG(ctx, block)
	if err != nil {
		return cid.Undef, err
	}
	_ = wantCID // the store, not the codec, is authoritative for the CID
	return gotCID, nil
}

// GetPayload fetches and decodes the Payload block at c.
func (c *Client) GetPayload(ctx context.Context, payloadCID cid.Cid) (codec.Payload, error) {
	block, err := c.store.GetDAG(ctx, payloadCID)
	if err != nil {
		return codec.Payload{}, err
	}
	return codec.DecodePayload(block)
}

// PutNode encodes and stores n, returning its CID.
func (c *Client) PutNode(ctx context.Context, n codec.Node) (cid.Cid, error) {
	block, _, err := codec.EncodeNode(n)
	if err != nil {
		return cid.Undef, err
	}
	return c.store.PutDAG(ctx, block)
}

// GetNode fetches and decodes the Node block at c.
func (c *Client) GetNode(ctx context.Context, nodeCID cid.Cid) (codec.Node, error) {
	block, err := c.store.GetDAG(ctx, nodeCID)
	if err != nil {
		return codec.Node{}, err
	}
	return codec.DecodeNode(block)
}

// PostTextNode runs PutBlob(text) -> PutPayload -> PutNode and pins the
// resulting Node CID. It either returns the final Node CID with all three
// blocks durably present, or an error; it never advances any caller's
// notion of HEAD (that is the Reactor's job, performed only once this
// call has succeeded).
func (c *Client) PostTextNode(ctx context.Context, parents []cid.Cid, text string) (cid.Cid, error) {
	if text == "" {
		return cid.Undef, ErrEmptyText
	}

	contentCID, err := c.PutText(ctx, text)
	if err != nil {
		return cid.Undef, fmt.Errorf("storing text blob: %w", err)
	}

	payloadCID, err := c.PutPayload(ctx, codec.Payload{
		MIME:      DefaultMIME,
		Timestamp: c.now().UTC(),
		Content:   contentCID,
	})
	if err != nil {
		return cid.Undef, fmt.Errorf("storing payload: %w", err)
	}

	nodeCID, err := c.PutNode(ctx, codec.Node{
		Version: codec.ProtocolVersion,
		Parents: append([]cid.Cid(nil), parents...),
		Payload: payloadCID,
	})
	if err != nil {
		return cid.Undef, fmt.Errorf("storing node: %w", err)
	}

	if err := c.store.Pin(ctx, nodeCID); err != nil {
		return cid.Undef, fmt.Errorf("pinning new node: %w", err)
	}

	return nodeCID, nil
}

// ReadNodeChain returns a lazy, depth-first walk of Nodes reachable from
// head. See package traversal for the walk's exact semantics.
func (c *Client) ReadNodeChain(head cid.Cid) *traversal.Walker {
	return traversal.NewWalker(c, head)
}

// ReadPayloadChain is ReadNodeChain composed with Payload and content-text
// resolution, as used by renderers such as the `cat` CLI command.
func (c *Client) ReadPayloadChain(head cid.Cid) *traversal.Payloads {
	return traversal.NewPayloads(c, head)
}
