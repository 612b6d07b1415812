package gossip_test

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/distrox/distrox/blockstore/memstore"
	"github.com/distrox/distrox/gossip"
)

func testCID(t *testing.T, data string) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte(data), mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum)
}

func TestPublishOwnStateRoundTripsThroughIngress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus := memstore.NewBus()
	alice := memstore.New(bus)
	bob := memstore.New(bus)

	sub, err := bob.PubSubSubscribe(ctx, gossip.DefaultTopic)
	require.NoError(t, err)
	defer sub.Close()

	head := testCID(t, "alice-head")
	require.NoError(t, gossip.PublishOwnState(ctx, alice, gossip.DefaultTopic, head))

	in := gossip.NewIngress(sub, nil)
	from, env, err := in.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, alice.OwnID(), from)
	require.Equal(t, gossip.EnvelopeTypeCurrentProfileState, env.Type)

	gotHead, err := env.DecodedCID()
	require.NoError(t, err)
	require.True(t, gotHead.Equals(head))

	gotPeer, err := env.DecodedPeerID()
	require.NoError(t, err)
	require.Equal(t, alice.OwnID(), gotPeer)
}

func TestPublishOwnStateRejectsEmptyHead(t *testing.T) {
	ctx := context.Background()
	alice := memstore.New(memstore.NewBus())
	err := gossip.PublishOwnState(ctx, alice, gossip.DefaultTopic, cid.Undef)
	require.ErrorIs(t, err, gossip.ErrNoHead)
}

func TestIsSelfSuppressesOwnAnnouncements(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus := memstore.NewBus()
	alice := memstore.New(bus)

	sub, err := alice.PubSubSubscribe(ctx, gossip.DefaultTopic)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, gossip.PublishOwnState(ctx, alice, gossip.DefaultTopic, testCID(t, "self-head")))

	in := gossip.NewIngress(sub, nil)
	from, _, err := in.Next(ctx)
	require.NoError(t, err)
	require.True(t, gossip.IsSelf(alice, from))
}

// fixedStrategy records every decode error handed to it, for verifying
// Ingress routes malformed messages instead of surfacing them as Next
// errors.
type fixedStrategy struct {
	calls int
}

func (f *fixedStrategy) HandleDecodeError(error, []byte) { f.calls++ }

func TestIngressSkipsMalformedMessagesAndReportsToStrategy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus := memstore.NewBus()
	alice := memstore.New(bus)
	bob := memstore.New(bus)

	sub, err := bob.PubSubSubscribe(ctx, gossip.DefaultTopic)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, alice.PubSubPublish(ctx, gossip.DefaultTopic, []byte("not json")))
	head := testCID(t, "alice-head-2")
	require.NoError(t, gossip.PublishOwnState(ctx, alice, gossip.DefaultTopic, head))

	strategy := &fixedStrategy{}
	in := gossip.NewIngress(sub, strategy)
	_, env, err := in.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, strategy.calls)
	gotHead, err := env.DecodedCID()
	require.NoError(t, err)
	require.True(t, gotHead.Equals(head))
}

func TestLogHandlingStrategyIgnoresUnrecognisedEnvelopeType(t *testing.T) {
	// Handle must not panic on an envelope type it doesn't recognise; it
	// logs and returns.
	gossip.LogHandlingStrategy{}.Handle(context.Background(), "", gossip.Envelope{Type: "SomethingElse"})
}
