package ipfslite

import (
	"context"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/distrox/distrox/blockstore"
)

// subscription adapts *pubsub.Subscription to blockstore.Subscription.
type subscription struct {
	sub *pubsub.Subscription
}

func (s *subscription) Next(ctx context.Context) (blockstore.Message, error) {
	msg, err := s.sub.Next(ctx)
	if err != nil {
		return blockstore.Message{}, err
	}
	return blockstore.Message{From: msg.GetFrom(), Data: msg.GetData()}, nil
}

func (s *subscription) Close() error {
	s.sub.Cancel()
	return nil
}
