package main

import (
	"github.com/urfave/cli/v2"

	"github.com/datacore/datacore/internal/config"
)

var datadirFlag = &cli.StringFlag{
	Name:    "datadir",
	Aliases: []string{"d"},
	Value:   config.DefaultConfig().DataDir,
	Usage:   "data directory holding the identity key and storage files",
}

var listenFlag = &cli.StringFlag{
	Name:  "listen",
	Value: config.DefaultConfig().ListenAddr,
	Usage: "TCP address to accept replication connections on",
}

var metricsFlag = &cli.StringFlag{
	Name:  "metrics",
	Value: config.DefaultConfig().MetricsAddr,
	Usage: "TCP address to serve /metrics on (empty disables metrics)",
}

var peerFlag = &cli.StringSliceFlag{
	Name:  "peer",
	Usage: "address of a remote datacored to dial and replicate with (repeatable)",
}

var keepaliveFlag = &cli.IntFlag{
	Name:  "keepalive",
	Value: config.DefaultConfig().KeepaliveSeconds,
	Usage: "wire keepalive timeout in seconds",
}

var verbosityFlag = &cli.IntFlag{
	Name:  "verbosity",
	Value: config.DefaultConfig().Verbosity,
	Usage: "log level 0-5 (0=silent, 5=trace)",
}

// configFromContext builds a config.Config from the common flags bound to
// the invoking command.
func configFromContext(c *cli.Context) config.Config {
	cfg := config.DefaultConfig()
	cfg.DataDir = c.String("datadir")
	cfg.ListenAddr = c.String("listen")
	cfg.MetricsAddr = c.String("metrics")
	cfg.Peers = c.StringSlice("peer")
	cfg.KeepaliveSeconds = c.Int("keepalive")
	cfg.Verbosity = c.Int("verbosity")
	return cfg
}
