package client

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/distrox/distrox/blockstore/memstore"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPostTextNodeRootHasNoParents(t *testing.T) {
	c := NewWithClock(memstore.New(memstore.NewBus()), fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	nodeCID, err := c.PostTextNode(ctx, nil, "hello")
	require.NoError(t, err)

	node, err := c.GetNode(ctx, nodeCID)
	require.NoError(t, err)
	require.Empty(t, node.Parents)
	require.True(t, node.IsRoot())

	payload, err := c.GetPayload(ctx, node.Payload)
	require.NoError(t, err)
	text, err := c.GetText(ctx, payload.Content)
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestPostTextNodeChainsOffParent(t *testing.T) {
	store := memstore.New(memstore.NewBus())
	c := New(store)
	ctx := context.Background()

	first, err := c.PostTextNode(ctx, nil, "a")
	require.NoError(t, err)

	second, err := c.PostTextNode(ctx, []cid.Cid{first}, "b")
	require.NoError(t, err)

	node, err := c.GetNode(ctx, second)
	require.NoError(t, err)
	require.Len(t, node.Parents, 1)
	require.True(t, node.Parents[0].Equals(first))
}

func TestPostTextNodeRejectsEmptyText(t *testing.T) {
	c := New(memstore.New(memstore.NewBus()))
	_, err := c.PostTextNode(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestPostTextNodePinsResult(t *testing.T) {
	store := memstore.New(memstore.NewBus())
	c := New(store)
	nodeCID, err := c.PostTextNode(context.Background(), nil, "pin me")
	require.NoError(t, err)
	require.True(t, store.IsPinned(nodeCID))
}
