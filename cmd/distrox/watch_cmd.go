package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/urfave/cli/v2"

	"github.com/distrox/distrox/blockstore/ipfslite"
	"github.com/distrox/distrox/gossip"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "boot a bare transport under STATE_DIR and log inbound gossip until interrupted",
		ArgsUsage: "STATE_DIR",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "connect", Usage: "peer multiaddr to connect to, may repeat"},
		},
		Action: func(c *cli.Context) error {
			stateDir := c.Args().First()
			if stateDir == "" {
				return fmt.Errorf("watch: STATE_DIR is required")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			priv, _, err := crypto.GenerateEd25519Key(nil)
			if err != nil {
				return fmt.Errorf("generating transport identity: %w", err)
			}

			store, err := ipfslite.Open(ctx, filepath.Join(stateDir, "ipfs"), priv, nil)
			if err != nil {
				return fmt.Errorf("starting transport under %s: %w", stateDir, err)
			}
			defer store.Close()

			log.Infow("own id", "id", store.OwnID())
			for _, addr := range store.OwnAddresses() {
				log.Infow("own address", "addr", addr.String())
			}

			for _, addr := range c.StringSlice("connect") {
				log.Infow("connecting", "addr", addr)
				if err := store.Connect(ctx, addr); err != nil {
					log.Errorw("connect failed", "addr", addr, "error", err)
				}
			}

			sub, err := store.PubSubSubscribe(ctx, gossip.DefaultTopic)
			if err != nil {
				return fmt.Errorf("subscribing to %q: %w", gossip.DefaultTopic, err)
			}
			ingress := gossip.NewIngress(sub, gossip.LogDecodeErrorStrategy{})
			defer ingress.Close()

			log.Infow("watching", "topic", gossip.DefaultTopic)
			for {
				from, env, err := ingress.Next(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("reading gossip: %w", err)
				}
				if gossip.IsSelf(store, from) {
					continue
				}
				gossip.LogHandlingStrategy{}.Handle(ctx, from, env)
			}
		},
	}
}
