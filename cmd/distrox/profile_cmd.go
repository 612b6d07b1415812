package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/distrox/distrox/codec"
	"github.com/distrox/distrox/gossip"
	"github.com/distrox/distrox/profile"
	"github.com/distrox/distrox/reactor"
	"github.com/distrox/distrox/traversal"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "manage and drive a local distrox profile",
		Subcommands: []*cli.Command{
			profileCreateCommand(),
			profileServeCommand(),
			profilePostCommand(),
			profileCatCommand(),
		},
	}
}

var nameFlag = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "name of the profile",
}

func profileCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "create a new profile under the state directory",
		Flags: []cli.Flag{nameFlag},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			name := c.String("name")

			dir, err := profile.StateDirPath(name)
			if err != nil {
				return err
			}
			log.Infow("creating profile", "name", name, "dir", string(dir))

			p, err := profile.Create(ctx, dir, name, ipfsliteOpener(nil))
			if err != nil {
				return fmt.Errorf("creating profile %q: %w", name, err)
			}
			return p.Exit()
		},
	}
}

func profileServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "load a profile, join the network, and publish/watch gossip until interrupted",
		Flags: []cli.Flag{
			nameFlag,
			&cli.StringSliceFlag{Name: "listen", Usage: "multiaddr to listen on, may repeat"},
			&cli.StringSliceFlag{Name: "connect", Usage: "peer multiaddr to connect to, may repeat"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			name := c.String("name")
			dir, err := profile.StateDirPath(name)
			if err != nil {
				return err
			}

			log.Infow("loading profile", "name", name, "dir", string(dir))
			p, err := profile.Load(ctx, dir, ipfsliteOpener(c.StringSlice("listen")))
			if err != nil {
				return fmt.Errorf("loading profile %q: %w", name, err)
			}

			for _, addr := range p.Client().Store().OwnAddresses() {
				log.Infow("own address", "addr", addr.String())
			}

			// Run drives on its own background context: shutdown is
			// requested explicitly via Exit (triggered by the interrupt
			// signal below), not by cancelling the context Run awaits on.
			r := reactor.New(p, gossip.DefaultTopic, gossip.LogHandlingStrategy{})
			runCtx := context.Background()
			runErrCh := make(chan error, 1)
			go func() { runErrCh <- r.Run(runCtx) }()

			for _, addr := range c.StringSlice("connect") {
				log.Infow("connecting", "addr", addr)
				if err := r.Connect(ctx, addr); err != nil {
					log.Errorw("connect failed", "addr", addr, "error", err)
				}
			}

			log.Infow("serving", "topic", gossip.DefaultTopic)
			<-ctx.Done()
			log.Infow("shutting down")

			exitCtx, exitCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer exitCancel()
			_ = r.Exit(exitCtx)
			<-runErrCh

			return p.Exit()
		},
	}
}

func profilePostCommand() *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "append one post to a profile's timeline",
		Flags: []cli.Flag{
			nameFlag,
			&cli.StringFlag{Name: "text", Usage: "text to post"},
			&cli.BoolFlag{Name: "editor", Aliases: []string{"e"}, Usage: "compose the post in $EDITOR"},
		},
		Action: func(c *cli.Context) error {
			hasText := c.IsSet("text")
			hasEditor := c.Bool("editor")
			if hasText == hasEditor {
				return fmt.Errorf("exactly one of --text or --editor is required")
			}

			text := c.String("text")
			if hasEditor {
				edited, err := textFromEditor()
				if err != nil {
					return err
				}
				text = edited
			}
			text = strings.TrimRight(text, "\n")

			ctx := context.Background()
			name := c.String("name")
			dir, err := profile.StateDirPath(name)
			if err != nil {
				return err
			}

			p, err := profile.Load(ctx, dir, ipfsliteOpener(nil))
			if err != nil {
				return fmt.Errorf("loading profile %q: %w", name, err)
			}

			headCID, err := p.PostText(ctx, text)
			if err != nil {
				return fmt.Errorf("posting: %w", err)
			}
			log.Infow("posted", "cid", headCID.String())

			return p.Exit()
		},
	}
}

func profileCatCommand() *cli.Command {
	return &cli.Command{
		Name:  "cat",
		Usage: "print a profile's complete timeline, newest post first",
		Flags: []cli.Flag{nameFlag},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			name := c.String("name")
			dir, err := profile.StateDirPath(name)
			if err != nil {
				return err
			}

			p, err := profile.Load(ctx, dir, ipfsliteOpener(nil))
			if err != nil {
				return fmt.Errorf("loading profile %q: %w", name, err)
			}
			defer p.Exit()

			head := p.Head()
			if head == nil {
				fmt.Fprintln(os.Stderr, "profile has no posts")
				return nil
			}

			chain := p.Client().ReadPayloadChain(*head)
			for {
				triple, err := chain.Next(ctx)
				if err != nil {
					if errors.Is(err, traversal.Done) {
						return nil
					}
					return fmt.Errorf("reading timeline: %w", err)
				}
				// Unknown-version nodes are still followed (their Parents
				// were already pushed by the walker) but are not rendered
				// (spec.md §6's forward-compatibility rule).
				if triple.Node.Version != codec.ProtocolVersion {
					continue
				}
				fmt.Printf("%s - %s\n%s\n\n", triple.Payload.Timestamp.Format(time.RFC3339), triple.Payload.Content, triple.Text)
			}
		},
	}
}
