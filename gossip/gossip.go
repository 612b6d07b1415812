// Package gossip implements the typed pub/sub layer that advertises "my
// profile is at CID X" and demultiplexes inbound announcements into a
// handler pipeline (spec.md §4.F).
package gossip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/distrox/distrox/blockstore"
)

var log = logging.Logger("distrox/gossip")

// DefaultTopic is the single pubsub topic all participating peers
// subscribe to.
const DefaultTopic = "distrox"

// ErrNoHead is returned by PublishOwnState when the profile has never
// posted.
var ErrNoHead = fmt.Errorf("gossip: profile has no HEAD to publish")

// EnvelopeTypeCurrentProfileState is the Envelope.Type value that tags the
// CurrentProfileState variant, the only variant spec.md §3 requires; more may be added later without
// breaking JSON compatibility with older peers (unknown-type envelopes
// decode into Envelope with Type set and no CurrentProfileState payload).
const EnvelopeTypeCurrentProfileState = "CurrentProfileState"

// Envelope is the wire form of a gossip announcement: a tagged JSON
// union. PeerID and CID are base64-encoded byte strings on the wire.
type Envelope struct {
	Type    string `json:"type"`
	PeerID  string `json:"peer_id"`
	CID     string `json:"cid"`
}

// CurrentProfileState builds the envelope announcing that peer is
// currently at head.
func CurrentProfileState(peerID peer.ID, head cid.Cid) Envelope {
	return Envelope{
		Type:   EnvelopeTypeCurrentProfileState,
		PeerID: base64.StdEncoding.EncodeToString([]byte(peerID)),
		CID:    base64.StdEncoding.EncodeToString(head.Bytes()),
	}
}

// DecodedPeerID decodes e.PeerID back into a peer.ID.
func (e Envelope) DecodedPeerID() (peer.ID, error) {
	raw, err := base64.StdEncoding.DecodeString(e.PeerID)
	if err != nil {
		return "", fmt.Errorf("decoding peer_id: %w", err)
	}
	return peer.ID(raw), nil
}

// DecodedCID decodes e.CID back into a cid.Cid.
func (e Envelope) DecodedCID() (cid.Cid, error) {
	raw, err := base64.StdEncoding.DecodeString(e.CID)
	if err != nil {
		return cid.Undef, fmt.Errorf("decoding cid: %w", err)
	}
	return cid.Cast(raw)
}

// Marshal serialises e as the JSON bytes published on the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeErrorStrategy decides what happens to a message that fails to
// decode as an Envelope. It is chosen once, at construction time, not
// per-message (spec.md §4.F).
type DecodeErrorStrategy interface {
	HandleDecodeError(err error, raw []byte)
}

// LogDecodeErrorStrategy records malformed messages at debug level.
type LogDecodeErrorStrategy struct{}

func (LogDecodeErrorStrategy) HandleDecodeError(err error, raw []byte) {
	log.Debugw("dropping malformed gossip message", "error", err, "bytes", len(raw))
}

// IgnoreDecodeErrorStrategy silently drops malformed messages.
type IgnoreDecodeErrorStrategy struct{}

func (IgnoreDecodeErrorStrategy) HandleDecodeError(error, []byte) {}

// Ingress decodes a blockstore.Subscription's raw messages into
// (peer.ID, Envelope) pairs, handing decode failures to a
// DecodeErrorStrategy and dropping them.
type Ingress struct {
	sub      blockstore.Subscription
	strategy DecodeErrorStrategy
}

// NewIngress wraps sub, decoding with strategy (defaults to
// LogDecodeErrorStrategy if nil).
func NewIngress(sub blockstore.Subscription, strategy DecodeErrorStrategy) *Ingress {
	if strategy == nil {
		strategy = LogDecodeErrorStrategy{}
	}
	return &Ingress{sub: sub, strategy: strategy}
}

// Next blocks for the next successfully decoded envelope, transparently
// skipping and reporting malformed messages in between.
func (in *Ingress) Next(ctx context.Context) (peer.ID, Envelope, error) {
	for {
		msg, err := in.sub.Next(ctx)
		if err != nil {
			return "", Envelope{}, err
		}
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			in.strategy.HandleDecodeError(err, msg.Data)
			continue
		}
		return msg.From, env, nil
	}
}

// Close releases the underlying subscription.
func (in *Ingress) Close() error {
	return in.sub.Close()
}

// HandlingStrategy is a pluggable sink for decoded envelopes. Its contract
// is non-blocking with respect to the Reactor's main loop: a strategy that
// wants to do slow work (e.g. traverse the announced timeline) must spawn
// its own goroutine rather than block Handle.
type HandlingStrategy interface {
	Handle(ctx context.Context, source peer.ID, env Envelope)
}

// LogHandlingStrategy records "peer X reports HEAD Y" and nothing else.
type LogHandlingStrategy struct{}

func (LogHandlingStrategy) Handle(_ context.Context, source peer.ID, env Envelope) {
	switch env.Type {
	case EnvelopeTypeCurrentProfileState:
		peerID, err := env.DecodedPeerID()
		if err != nil {
			log.Debugw("malformed peer_id in envelope", "from", source, "error", err)
			return
		}
		headCID, err := env.DecodedCID()
		if err != nil {
			log.Debugw("malformed cid in envelope", "from", source, "error", err)
			return
		}
		log.Infow("peer reports HEAD", "source", source, "peer", peerID, "head", headCID)
	default:
		log.Debugw("unrecognised envelope type", "from", source, "type", env.Type)
	}
}

// PublishOwnState reads head and publishes a CurrentProfileState envelope
// announcing it, on topic. Returns ErrNoHead if head is cid.Undef.
func PublishOwnState(ctx context.Context, store blockstore.Store, topic string, head cid.Cid) error {
	if !head.Defined() {
		return ErrNoHead
	}
	env := CurrentProfileState(store.OwnID(), head)
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}
	return store.PubSubPublish(ctx, topic, data)
}

// IsSelf reports whether source is this process's own peer ID, for the
// Reactor's self-loop suppression (spec.md §4.F).
func IsSelf(store blockstore.Store, source peer.ID) bool {
	return source == store.OwnID()
}
