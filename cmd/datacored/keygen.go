package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/datacore/datacore/internal/config"
	"github.com/datacore/datacore/keys"
)

var commandKeygen = &cli.Command{
	Name:  "keygen",
	Usage: "generate (or display) this datadir's Ed25519 identity",
	Flags: []cli.Flag{datadirFlag},
	Action: func(c *cli.Context) error {
		cfg := configFromContext(c)
		if err := cfg.InitDataDir(); err != nil {
			return err
		}
		public, _, err := config.LoadOrCreateIdentity(&cfg)
		if err != nil {
			return err
		}
		fmt.Printf("public key:    %s\n", hex.EncodeToString(public))
		fmt.Printf("discovery key: %s\n", keys.DiscoveryKey(public).String())
		return nil
	},
}
