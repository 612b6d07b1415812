// Package memstore is a deterministic, in-process blockstore.Store used by
// the core's own test suite and by tooling that wants distrox semantics
// without standing up a real libp2p swarm. It plays the role a mock
// transport plays in the teacher's tests: a plain struct implementing the
// consumed interface, not a generated mock.
package memstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/distrox/distrox/blockstore"
)

// Bus fans pubsub messages out to every Store created with it via New,
// modelling the shared broadcast topic a real libp2p pubsub
// mesh would provide. A Bus is safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscription
}

// NewBus creates an empty message bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

func (b *Bus) subscribe(topic string) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscription{bus: b, topic: topic, ch: make(chan blockstore.Message, 64), closed: make(chan struct{})}
	b.subs[topic] = append(b.subs[topic], s)
	return s
}

func (b *Bus) unsubscribe(topic string, s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	peers := b.subs[topic]
	for i, p := range peers {
		if p == s {
			b.subs[topic] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
}

func (b *Bus) publish(topic string, msg blockstore.Message) {
	b.mu.Lock()
	peers := append([]*subscription(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, s := range peers {
		select {
		case s.ch <- msg:
		case <-s.closed:
		}
	}
}

type subscription struct {
	bus    *Bus
	topic  string
	ch     chan blockstore.Message
	closed chan struct{}
	once   sync.Once
}

func (s *subscription) Next(ctx context.Context) (blockstore.Message, error) {
	select {
	case m := <-s.ch:
		return m, nil
	case <-ctx.Done():
		return blockstore.Message{}, ctx.Err()
	case <-s.closed:
		return blockstore.Message{}, ctx.Err()
	}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.bus.unsubscribe(s.topic, s)
	})
	return nil
}

// Store is an in-memory blockstore.Store: a mutex-protected map of CID to
// bytes, plus a reference to a shared Bus for pubsub.
type Store struct {
	id   peer.ID
	bus  *Bus
	dial func(addr string) error

	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
	pinned map[cid.Cid]struct{}
}

// New creates a Store with a randomly generated peer identity, publishing
// and subscribing on bus.
func New(bus *Bus) *Store {
	return &Store{
		id:     randomPeerID(),
		bus:    bus,
		blocks: make(map[cid.Cid][]byte),
		pinned: make(map[cid.Cid]struct{}),
	}
}

func randomPeerID() peer.ID {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	sum, err := mh.Sum(buf, mh.IDENTITY, -1)
	if err != nil {
		panic(err)
	}
	return peer.ID(sum)
}

var _ blockstore.Store = (*Store)(nil)

func (s *Store) put(data []byte) cid.Cid {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	c := cid.NewCidV1(cid.DagCBOR, sum)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[c] = append([]byte(nil), data...)
	return c
}

func (s *Store) PutDAG(_ context.Context, block []byte) (cid.Cid, error) {
	return s.put(block), nil
}

func (s *Store) GetDAG(_ context.Context, c cid.Cid) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[c]
	if !ok {
		return nil, blockstore.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) PutBlob(_ context.Context, r io.Reader) (cid.Cid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	c := cid.NewCidV1(cid.Raw, sum)
	s.mu.Lock()
	s.blocks[c] = data
	s.mu.Unlock()
	return c, nil
}

func (s *Store) GetBlob(_ context.Context, c cid.Cid) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blocks[c]
	s.mu.RUnlock()
	if !ok {
		return nil, blockstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Pin(_ context.Context, c cid.Cid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[c]; !ok {
		return blockstore.ErrNotFound
	}
	s.pinned[c] = struct{}{}
	return nil
}

func (s *Store) PubSubSubscribe(_ context.Context, topic string) (blockstore.Subscription, error) {
	return s.bus.subscribe(topic), nil
}

func (s *Store) PubSubPublish(_ context.Context, topic string, data []byte) error {
	s.bus.publish(topic, blockstore.Message{From: s.id, Data: append([]byte(nil), data...)})
	return nil
}

func (s *Store) Connect(_ context.Context, addr string) error {
	if s.dial != nil {
		return s.dial(addr)
	}
	return nil
}

func (s *Store) OwnID() peer.ID { return s.id }

func (s *Store) OwnAddresses() []multiaddr.Multiaddr {
	a, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	if err != nil {
		return nil
	}
	return []multiaddr.Multiaddr{a}
}

func (s *Store) Close() error { return nil }

// SetDialer overrides Connect's behaviour; mainly used by tests that
// exercise DialFailure handling.
func (s *Store) SetDialer(dial func(addr string) error) {
	s.dial = dial
}

// IsPinned reports whether c has been pinned. Test helper.
func (s *Store) IsPinned(c cid.Cid) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pinned[c]
	return ok
}
