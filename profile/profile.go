// Package profile implements a persistent distrox identity: an Ed25519
// keypair, a cached HEAD pointer, and a crash-safe on-disk representation
// (spec.md §4.D).
package profile

import (
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/distrox/distrox/blockstore"
	"github.com/distrox/distrox/client"
)

var log = logging.Logger("distrox/profile")

// Profile owns a Client (never the reverse, breaking the cyclic
// Profile/Client/Reactor reference original_source's Rust shows) and the
// mutable ProfileState. Callers
// outside package reactor should treat a Profile as owned by exactly one
// Reactor; concurrent mutation is undefined behaviour (spec.md §5).
type Profile struct {
	state  *State
	client *client.Client
	dir    StateDir
}

// Client returns the Profile's Client facade.
func (p *Profile) Client() *client.Client { return p.client }

// Head returns the profile's current HEAD, or nil if it has never posted.
func (p *Profile) Head() *cid.Cid { return p.state.ProfileHead }

// Name returns the profile's name.
func (p *Profile) Name() string { return p.state.ProfileName }

// Keypair returns the profile's signing keypair. It never leaves the
// Profile or its on-disk file in any other form (spec.md §4.D invariant).
func (p *Profile) Keypair() crypto.PrivKey { return p.state.Keypair }

// Create generates a fresh Ed25519 keypair and an empty-HEAD profile
// under dir, persisting it immediately. newStore is handed dir and must
// construct a blockstore.Store rooted at dir.IPFSPath() (callers typically
// pass a StoreOpener wrapping blockstore/ipfslite.Open or, for tests, one
// returning a memstore).
func Create(ctx context.Context, dir StateDir, name string, newStore StoreOpener) (*Profile, error) {
	if name == "" {
		return nil, fmt.Errorf("profile: name must not be empty")
	}
	if err := os.MkdirAll(dir.IPFSPath(), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}

	store, err := newStore(ctx, dir, priv)
	if err != nil {
		return nil, fmt.Errorf("starting blockstore: %w", err)
	}

	state := newState(name, priv)
	p := &Profile{state: state, client: client.New(store), dir: dir}

	if err := state.saveToDisk(dir); err != nil {
		return nil, fmt.Errorf("saving new profile: %w", err)
	}
	log.Infow("created profile", "name", name, "dir", string(dir))
	return p, nil
}

// Load reads a previously created profile's state from dir and attaches a
// freshly constructed blockstore using the same storage path and keypair.
func Load(ctx context.Context, dir StateDir, newStore StoreOpener) (*Profile, error) {
	state, err := loadFromDisk(dir)
	if err != nil {
		return nil, fmt.Errorf("loading profile state: %w", err)
	}
	store, err := newStore(ctx, dir, state.Keypair)
	if err != nil {
		return nil, fmt.Errorf("starting blockstore: %w", err)
	}
	log.Infow("loaded profile", "name", state.ProfileName, "head", headString(state.ProfileHead))
	return &Profile{state: state, client: client.New(store), dir: dir}, nil
}

// Save atomically overwrites the profile's on-disk state.
func (p *Profile) Save() error {
	return p.state.saveToDisk(p.dir)
}

// PostText runs Client.PostTextNode with the current HEAD (if any) as the
// sole parent, advances HEAD, and saves. HEAD only advances after disk
// save completes; a crash between the blockstore write and the save
// leaves an orphan, garbage-collectable Node without moving the
// authoritative HEAD (spec.md §4.D).
func (p *Profile) PostText(ctx context.Context, text string) (cid.Cid, error) {
	var parents []cid.Cid
	if p.state.ProfileHead != nil {
		parents = []cid.Cid{*p.state.ProfileHead}
	}

	newCID, err := p.client.PostTextNode(ctx, parents, text)
	if err != nil {
		return cid.Undef, err
	}

	prevHead := p.state.ProfileHead
	p.state.ProfileHead = &newCID
	if err := p.Save(); err != nil {
		p.state.ProfileHead = prevHead
		return cid.Undef, fmt.Errorf("saving state after post: %w", err)
	}
	log.Debugw("posted text", "name", p.state.ProfileName, "head", newCID.String())
	return newCID, nil
}

// Exit flushes state and closes the blockstore. Safe to call even if a
// prior Save already ran.
func (p *Profile) Exit() error {
	if err := p.Save(); err != nil {
		return err
	}
	return p.client.Store().Close()
}

// StoreOpener constructs a blockstore.Store rooted at dir's IPFS path,
// using priv as the transport identity. cmd/distrox's ipfsliteOpener
// adapts blockstore/ipfslite.Open to this signature; tests supply openers
// that return a memstore.
type StoreOpener func(ctx context.Context, dir StateDir, priv crypto.PrivKey) (blockstore.Store, error)

func headString(h *cid.Cid) string {
	if h == nil {
		return "<none>"
	}
	return h.String()
}
