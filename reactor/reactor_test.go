package reactor_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/distrox/distrox/blockstore"
	"github.com/distrox/distrox/blockstore/memstore"
	"github.com/distrox/distrox/gossip"
	"github.com/distrox/distrox/profile"
	"github.com/distrox/distrox/reactor"
)

func memStoreOpener(bus *memstore.Bus) profile.StoreOpener {
	return func(_ context.Context, _ profile.StateDir, _ crypto.PrivKey) (blockstore.Store, error) {
		return memstore.New(bus), nil
	}
}

func newTestProfile(t *testing.T, name string, bus *memstore.Bus) *profile.Profile {
	t.Helper()
	dir := profile.StateDir(filepath.Join(t.TempDir(), name))
	p, err := profile.Create(context.Background(), dir, name, memStoreOpener(bus))
	require.NoError(t, err)
	return p
}

func testCID(t *testing.T, data string) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte(data), mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum)
}

// recordingStrategy records every envelope it is handed, for asserting
// self-loop suppression and malformed-message tolerance.
type recordingStrategy struct {
	ch chan gossip.Envelope
}

func newRecordingStrategy() *recordingStrategy {
	return &recordingStrategy{ch: make(chan gossip.Envelope, 16)}
}

func (s *recordingStrategy) Handle(_ context.Context, _ peer.ID, env gossip.Envelope) {
	s.ch <- env
}

func runInBackground(t *testing.T, r *reactor.Reactor, ctx context.Context) (cancel func(), wait func()) {
	t.Helper()
	runCtx, cancelFn := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		r.Run(runCtx)
		close(done)
	}()
	return cancelFn, func() { <-done }
}

func TestReactorPingReplies(t *testing.T) {
	bus := memstore.NewBus()
	p := newTestProfile(t, "alice", bus)
	r := reactor.New(p, gossip.DefaultTopic, nil)

	cancel, wait := runInBackground(t, r, context.Background())
	require.NoError(t, r.Ping(context.Background()))
	cancel()
	wait()
	require.Equal(t, reactor.StateTerminated, r.State())
}

func TestReactorPostTextAdvancesHead(t *testing.T) {
	bus := memstore.NewBus()
	p := newTestProfile(t, "alice", bus)
	r := reactor.New(p, gossip.DefaultTopic, nil)

	cancel, wait := runInBackground(t, r, context.Background())
	defer func() { cancel(); wait() }()

	c, err := r.PostText(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, p.Head().Equals(c))
}

func TestReactorPublishMeNoHead(t *testing.T) {
	bus := memstore.NewBus()
	p := newTestProfile(t, "alice", bus)
	r := reactor.New(p, gossip.DefaultTopic, nil)

	cancel, wait := runInBackground(t, r, context.Background())
	defer func() { cancel(); wait() }()

	status, err := r.PublishMe(context.Background())
	require.Equal(t, reactor.PublishNoHead, status)
	require.ErrorIs(t, err, gossip.ErrNoHead)
}

func TestReactorPublishMeWithHead(t *testing.T) {
	bus := memstore.NewBus()
	alice := newTestProfile(t, "alice", bus)
	r := reactor.New(alice, gossip.DefaultTopic, nil)

	bobStore := memstore.New(bus)
	sub, err := bobStore.PubSubSubscribe(context.Background(), gossip.DefaultTopic)
	require.NoError(t, err)
	defer sub.Close()

	cancel, wait := runInBackground(t, r, context.Background())
	defer func() { cancel(); wait() }()

	_, err = r.PostText(context.Background(), "hello")
	require.NoError(t, err)

	status, err := r.PublishMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, reactor.PublishOK, status)

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	msg, err := sub.Next(recvCtx)
	require.NoError(t, err)

	var env gossip.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	require.Equal(t, gossip.EnvelopeTypeCurrentProfileState, env.Type)
	head, err := env.DecodedCID()
	require.NoError(t, err)
	require.True(t, head.Equals(*alice.Head()))
}

func TestReactorSuppressesOwnGossip(t *testing.T) {
	bus := memstore.NewBus()
	alice := newTestProfile(t, "alice", bus)
	strategy := newRecordingStrategy()
	r := reactor.New(alice, gossip.DefaultTopic, strategy)

	cancel, wait := runInBackground(t, r, context.Background())
	defer func() { cancel(); wait() }()

	_, err := r.PostText(context.Background(), "hello")
	require.NoError(t, err)
	status, err := r.PublishMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, reactor.PublishOK, status)

	select {
	case <-strategy.ch:
		t.Fatal("own publication should have been suppressed before reaching the strategy")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReactorContinuesAfterMalformedGossip(t *testing.T) {
	bus := memstore.NewBus()
	alice := newTestProfile(t, "alice", bus)
	strategy := newRecordingStrategy()
	r := reactor.New(alice, gossip.DefaultTopic, strategy)

	bob := memstore.New(bus)

	cancel, wait := runInBackground(t, r, context.Background())
	defer func() { cancel(); wait() }()

	require.NoError(t, r.Ping(context.Background()))

	require.NoError(t, bob.PubSubPublish(context.Background(), gossip.DefaultTopic, []byte("not json")))
	env := gossip.CurrentProfileState(bob.OwnID(), testCID(t, "bob-head"))
	data, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, bob.PubSubPublish(context.Background(), gossip.DefaultTopic, data))

	select {
	case got := <-strategy.ch:
		require.Equal(t, gossip.EnvelopeTypeCurrentProfileState, got.Type)
	case <-time.After(time.Second):
		t.Fatal("expected the valid envelope to still reach the strategy")
	}
}

func TestReactorExitTerminates(t *testing.T) {
	bus := memstore.NewBus()
	p := newTestProfile(t, "alice", bus)
	r := reactor.New(p, gossip.DefaultTopic, nil)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	require.NoError(t, r.Exit(context.Background()))
	<-done
	require.Equal(t, reactor.StateTerminated, r.State())
}
