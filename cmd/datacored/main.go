// Command datacored is a reference daemon over the datacore log engine:
// it opens (or creates) a single Ed25519-identified core, accepts and
// dials replication peers, and exposes Prometheus metrics.
//
// Usage:
//
//	datacored serve  --datadir ~/.datacore --listen :7670 --peer host:7670
//	datacored keygen --datadir ~/.datacore
//	datacored dump   --datadir ~/.datacore
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	version = "v0.1.0-dev"
)

func main() {
	app := &cli.App{
		Name:    "datacored",
		Usage:   "append-only log engine daemon",
		Version: version,
		Commands: []*cli.Command{
			commandServe,
			commandKeygen,
			commandDump,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "datacored: %v\n", err)
		os.Exit(1)
	}
}
