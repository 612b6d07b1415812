package ipfslite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	bsrv "github.com/ipfs/boxo/blockservice"
	bstore "github.com/ipfs/boxo/blockstore"
	"github.com/ipfs/boxo/bitswap"
	bsnet "github.com/ipfs/boxo/bitswap/network"
	"github.com/ipfs/boxo/exchange"
	"github.com/ipfs/boxo/ipld/merkledag"
	"github.com/ipfs/boxo/pinning/pinner"
	"github.com/ipfs/boxo/pinning/pinner/dspinner"
	"github.com/ipfs/boxo/provider"
	"github.com/ipfs/go-cid"
	blocks "github.com/ipfs/go-block-format"
	datastore "github.com/ipfs/go-datastore"
	ipld "github.com/ipfs/go-ipld-format"
	logging "github.com/ipfs/go-log/v2"
	mh "github.com/multiformats/go-multihash"
	dualdht "github.com/libp2p/go-libp2p-kad-dht/dual"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/distrox/distrox/blockstore"
)

var log = logging.Logger("distrox/blockstore/ipfslite")

// Peer is a libp2p host plus the boxo plumbing (bitswap, blockservice,
// merkledag, pinner, gossipsub) wired together as one blockstore.Store.
// It plays the role the teacher's ipfs/ipfs.Peer plays, generalised from
// a one-off demo object into the transport distrox's Reactor drives.
type Peer struct {
	ctx context.Context
	ds  datastore.Batching

	host host.Host
	dht  *dualdht.DHT
	ps   *pubsub.PubSub

	ipld.DAGService
	exch       exchange.Interface
	bstore     bstore.Blockstore
	bserv      bsrv.BlockService
	pinner     pinner.Pinner
	reprovider provider.System

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func newPeer(ctx context.Context, ds datastore.Batching, h host.Host, ddht *dualdht.DHT, ps *pubsub.PubSub) (*Peer, error) {
	p := &Peer{
		ctx:    ctx,
		ds:     ds,
		host:   h,
		dht:    ddht,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),
	}

	p.bstore = bstore.NewBlockstore(p.ds)

	bswapnet := bsnet.NewFromIpfsHost(p.host, p.dht)
	bswap := bitswap.New(p.ctx, bswapnet, p.bstore)
	p.bserv = bsrv.New(p.bstore, bswap)
	p.exch = bswap
	p.DAGService = merkledag.NewDAGService(p.bserv)

	pn, err := dspinner.New(ctx, p.ds, p.DAGService)
	if err != nil {
		p.bserv.Close()
		return nil, fmt.Errorf("starting pinner: %w", err)
	}
	p.pinner = pn

	p.reprovider = provider.NewNoopProvider()

	go func() {
		<-p.ctx.Done()
		p.reprovider.Close()
		p.bserv.Close()
	}()

	return p, nil
}

var _ blockstore.Store = (*Peer)(nil)

func (p *Peer) PutDAG(ctx context.Context, block []byte) (cid.Cid, error) {
	sum, err := mh.Sum(block, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	c := cid.NewCidV1(cid.DagCBOR, sum)
	blk, err := blocks.NewBlockWithCid(block, c)
	if err != nil {
		return cid.Undef, err
	}
	if err := p.bstore.Put(ctx, blk); err != nil {
		return cid.Undef, fmt.Errorf("storing DAG block: %w", err)
	}
	return c, nil
}

func (p *Peer) GetDAG(ctx context.Context, c cid.Cid) ([]byte, error) {
	blk, err := p.bstore.Get(ctx, c)
	if err != nil {
		if errors.Is(err, bstore.ErrNotFound) {
			return nil, blockstore.ErrNotFound
		}
		return nil, fmt.Errorf("fetching DAG block %s: %w", c, err)
	}
	return blk.RawData(), nil
}

func (p *Peer) PutBlob(ctx context.Context, r io.Reader) (cid.Cid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	c := cid.NewCidV1(cid.Raw, sum)
	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return cid.Undef, err
	}
	if err := p.bstore.Put(ctx, blk); err != nil {
		return cid.Undef, fmt.Errorf("storing blob: %w", err)
	}
	return c, nil
}

func (p *Peer) GetBlob(ctx context.Context, c cid.Cid) (io.ReadCloser, error) {
	blk, err := p.bstore.Get(ctx, c)
	if err != nil {
		if errors.Is(err, bstore.ErrNotFound) {
			return nil, blockstore.ErrNotFound
		}
		return nil, fmt.Errorf("fetching blob %s: %w", c, err)
	}
	return io.NopCloser(bytes.NewReader(blk.RawData())), nil
}

// Pin resolves c through the DAGService (so codec-decoded links, i.e. a
// Node's parents and payload, are walked for recursive pinning) and
// records it with the persistent pinner.
func (p *Peer) Pin(ctx context.Context, c cid.Cid) error {
	nd, err := p.DAGService.Get(ctx, c)
	if err != nil {
		if errors.Is(err, &ipld.ErrNotFound{}) {
			return blockstore.ErrNotFound
		}
		return fmt.Errorf("resolving %s for pinning: %w", c, err)
	}
	if err := p.pinner.Pin(ctx, nd, true); err != nil {
		return fmt.Errorf("pinning %s: %w", c, err)
	}
	return p.pinner.Flush(ctx)
}

func (p *Peer) topic(name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("joining topic %q: %w", name, err)
	}
	p.topics[name] = t
	return t, nil
}

func (p *Peer) PubSubSubscribe(ctx context.Context, topicName string) (blockstore.Subscription, error) {
	t, err := p.topic(topicName)
	if err != nil {
		return nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribing to topic %q: %w", topicName, err)
	}
	return &subscription{sub: sub}, nil
}

func (p *Peer) PubSubPublish(ctx context.Context, topicName string, data []byte) error {
	t, err := p.topic(topicName)
	if err != nil {
		return err
	}
	if err := t.Publish(ctx, data); err != nil {
		return fmt.Errorf("%w: %s", blockstore.ErrPublishFailure, err)
	}
	return nil
}

func (p *Peer) Connect(ctx context.Context, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parsing peer address %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return fmt.Errorf("parsing peer address %q: %w", addr, err)
	}
	if err := p.host.Connect(ctx, *info); err != nil {
		log.Debugw("dial failed", "addr", addr, "error", err)
		return fmt.Errorf("%w: %s", blockstore.ErrDialFailure, err)
	}
	return nil
}

func (p *Peer) OwnID() peer.ID { return p.host.ID() }

func (p *Peer) OwnAddresses() []multiaddr.Multiaddr { return p.host.Addrs() }

func (p *Peer) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Close()
	}
	p.mu.Unlock()

	if p.dht != nil {
		p.dht.Close()
	}
	if err := p.host.Close(); err != nil {
		return err
	}
	return p.ds.Close()
}
