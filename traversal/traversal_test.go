package traversal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/distrox/distrox/blockstore/memstore"
	"github.com/distrox/distrox/client"
	"github.com/distrox/distrox/traversal"
)

func TestWalkerEmitsTwoNodesForTwoPosts(t *testing.T) {
	c := client.New(memstore.New(memstore.NewBus()))
	ctx := context.Background()

	a, err := c.PostTextNode(ctx, nil, "a")
	require.NoError(t, err)
	b, err := c.PostTextNode(ctx, []cid.Cid{a}, "b")
	require.NoError(t, err)

	nodes, err := traversal.NewWalker(c, b).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Len(t, nodes[0].Parents, 1)
	require.True(t, nodes[0].Parents[0].Equals(a))
	require.Empty(t, nodes[1].Parents)
}

func TestWalkerStopsAndClearsStackOnError(t *testing.T) {
	c := client.New(memstore.New(memstore.NewBus()))
	w := traversal.NewWalker(c, cid.Undef)

	_, err := w.Next(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, traversal.Done))

	_, err = w.Next(context.Background())
	require.ErrorIs(t, err, traversal.Done)
}

func TestPayloadsYieldsTextsInTraversalOrder(t *testing.T) {
	c := client.New(memstore.New(memstore.NewBus()))
	ctx := context.Background()

	a, err := c.PostTextNode(ctx, nil, "a")
	require.NoError(t, err)
	b, err := c.PostTextNode(ctx, []cid.Cid{a}, "b")
	require.NoError(t, err)

	p := traversal.NewPayloads(c, b)
	var texts []string
	for {
		triple, err := p.Next(ctx)
		if errors.Is(err, traversal.Done) {
			break
		}
		require.NoError(t, err)
		texts = append(texts, triple.Text)
	}
	require.Equal(t, []string{"b", "a"}, texts)
}
