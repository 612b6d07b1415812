// Command distrox is the CLI front-end wiring the core packages
// (profile, reactor, gossip, blockstore/ipfslite) into the surface
// described in spec.md §6: profile create/serve/post/cat, and watch.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("distrox/cmd")

func main() {
	logging.SetAllLoggers(logging.LevelInfo)

	app := &cli.App{
		Name:  "distrox",
		Usage: "a distributed, content-addressed social network",
		Commands: []*cli.Command{
			profileCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "distrox:", err)
		os.Exit(1)
	}
}
