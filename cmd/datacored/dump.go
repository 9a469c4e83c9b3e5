package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/datacore/datacore/internal/config"
)

var commandDump = &cli.Command{
	Name:  "dump",
	Usage: "print every block in this datadir's core",
	Flags: []cli.Flag{datadirFlag},
	Action: func(c *cli.Context) error {
		cfg := configFromContext(c)
		public, _, err := config.LoadIdentity(&cfg)
		if err != nil {
			return fmt.Errorf("datacored: dump: %w", err)
		}

		opened, err := openCoreFromConfig(&cfg, public, nil)
		if err != nil {
			return fmt.Errorf("datacored: dump: %w", err)
		}

		fmt.Fprintf(os.Stdout, "core %s: %d block(s)\n", hex.EncodeToString(public), opened.Len())
		for entry := range opened.All() {
			fmt.Fprintf(os.Stdout, "%d\t%s\t%s\n", entry.Index, hex.EncodeToString(entry.Content), hex.EncodeToString(entry.Signature.Data[:]))
		}
		return nil
	},
}
