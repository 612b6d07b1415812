package main

import (
	"context"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/distrox/distrox/blockstore"
	"github.com/distrox/distrox/blockstore/ipfslite"
	"github.com/distrox/distrox/profile"
)

// ipfsliteOpener builds a profile.StoreOpener that boots a real
// libp2p/boxo-backed blockstore.Store rooted at the profile's state
// directory, listening on listenAddrs (empty means an ephemeral port).
func ipfsliteOpener(listenAddrs []string) profile.StoreOpener {
	return func(ctx context.Context, dir profile.StateDir, priv crypto.PrivKey) (blockstore.Store, error) {
		return ipfslite.Open(ctx, dir.IPFSPath(), priv, listenAddrs)
	}
}
