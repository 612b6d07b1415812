package memstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/distrox/distrox/blockstore"
	"github.com/stretchr/testify/require"
)

func TestPutGetDAGIdempotent(t *testing.T) {
	s := New(NewBus())
	ctx := context.Background()

	c1, err := s.PutDAG(ctx, []byte("hello"))
	require.NoError(t, err)
	c2, err := s.PutDAG(ctx, []byte("hello"))
	require.NoError(t, err)
	require.True(t, c1.Equals(c2))

	got, err := s.GetDAG(ctx, c1)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestGetDAGNotFound(t *testing.T) {
	s := New(NewBus())
	bogus, _ := s.PutDAG(context.Background(), []byte("x"))
	s2 := New(NewBus())
	_, err := s2.GetDAG(context.Background(), bogus)
	require.ErrorIs(t, err, blockstore.ErrNotFound)
}

func TestPutBlobRoundTrip(t *testing.T) {
	s := New(NewBus())
	ctx := context.Background()
	c, err := s.PutBlob(ctx, bytes.NewBufferString("hi there"))
	require.NoError(t, err)

	r, err := s.GetBlob(ctx, c)
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, "hi there", buf.String())
}

func TestPinRequiresExistingBlock(t *testing.T) {
	s := New(NewBus())
	bogus, _ := s.PutDAG(context.Background(), []byte("phantom"))
	s2 := New(NewBus())
	err := s2.Pin(context.Background(), bogus)
	require.ErrorIs(t, err, blockstore.ErrNotFound)
}

func TestPubSubDeliversAcrossPeersOnSharedBus(t *testing.T) {
	bus := NewBus()
	alice := New(bus)
	bob := New(bus)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := bob.PubSubSubscribe(ctx, "distrox")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, alice.PubSubPublish(ctx, "distrox", []byte("head-update")))

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("head-update"), msg.Data)
	require.Equal(t, alice.OwnID(), msg.From)
}
