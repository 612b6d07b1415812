// Package ipfslite is a libp2p/boxo-backed blockstore.Store, adapted from
// the teacher's vendored ipfs-lite Peer: a lightweight host+DHT+bitswap
// stack (rather than a full kubo daemon) that speaks the same DAGService
// and blockstore.Blockstore interfaces the rest of boxo expects.
package ipfslite

import (
	"context"
	"fmt"
	"time"

	badger "github.com/ipfs/go-ds-badger"

	ipns "github.com/ipfs/boxo/ipns"
	datastore "github.com/ipfs/go-datastore"
	libp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	dualdht "github.com/libp2p/go-libp2p-kad-dht/dual"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	record "github.com/libp2p/go-libp2p-record"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
)

var connMgr, _ = connmgr.NewConnManager(100, 600, connmgr.WithGracePeriod(time.Minute))

// Open starts a libp2p host identified by priv, listening on listenAddrs
// (defaults to an ephemeral TCP port on all interfaces when empty),
// backed by a badger datastore rooted at repoPath, and returns a Peer
// satisfying blockstore.Store. cmd/distrox wraps it in a
// profile.StoreOpener (see ipfsliteOpener there).
func Open(ctx context.Context, repoPath string, priv crypto.PrivKey, listenAddrs []string) (*Peer, error) {
	ds, err := badger.NewDatastore(repoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("opening badger datastore at %s: %w", repoPath, err)
	}

	if len(listenAddrs) == 0 {
		listenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	var ddht *dualdht.DHT
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.ConnectionManager(connMgr),
		libp2p.DefaultTransports,
		libp2p.NATPortMap(),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			ddht, err = newDHT(ctx, h, ds)
			return ddht, err
		}),
		libp2p.EnableNATService(),
	)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("starting libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		ds.Close()
		return nil, fmt.Errorf("starting gossipsub: %w", err)
	}

	p, err := newPeer(ctx, ds, h, ddht, ps)
	if err != nil {
		h.Close()
		ds.Close()
		return nil, err
	}
	return p, nil
}

func newDHT(ctx context.Context, h host.Host, ds datastore.Batching) (*dualdht.DHT, error) {
	opts := []dualdht.Option{
		dualdht.DHTOption(dht.NamespacedValidator("pk", record.PublicKeyValidator{})),
		dualdht.DHTOption(dht.NamespacedValidator("ipns", ipns.Validator{KeyBook: h.Peerstore()})),
		dualdht.DHTOption(dht.Concurrency(10)),
		dualdht.DHTOption(dht.Mode(dht.ModeAuto)),
		dualdht.DHTOption(dht.Datastore(ds)),
	}
	return dualdht.New(ctx, h, opts...)
}
