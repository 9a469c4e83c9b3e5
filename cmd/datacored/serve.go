package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/datacore/datacore/core"
	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/internal/config"
	"github.com/datacore/datacore/keys"
	applog "github.com/datacore/datacore/log"
	"github.com/datacore/datacore/metrics"
	"github.com/datacore/datacore/noise"
	"github.com/datacore/datacore/registry"
	"github.com/datacore/datacore/replication"
	"github.com/datacore/datacore/storage"
	"github.com/datacore/datacore/wire"
)

var log = applog.Default().Module("datacored")

var commandServe = &cli.Command{
	Name:  "serve",
	Usage: "open (or create) a core and replicate it with peers",
	Flags: []cli.Flag{datadirFlag, listenFlag, metricsFlag, peerFlag, keepaliveFlag, verbosityFlag},
	Action: func(c *cli.Context) error {
		cfg := configFromContext(c)
		return serve(c.Context, cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	applog.SetDefault(applog.New(config.VerbosityToLogLevel(cfg.Verbosity)))

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.InitDataDir(); err != nil {
		return err
	}

	public, secret, err := config.LoadOrCreateIdentity(&cfg)
	if err != nil {
		return err
	}

	localCore, err := openCoreFromConfig(&cfg, public, secret)
	if err != nil {
		return err
	}

	cores := registry.New()
	cores.Insert(localCore)
	localDiscovery := core.DiscoveryKeyOf(localCore)
	log.Info("opened core", "public", hex.EncodeToString(public), "discoveryKey", localDiscovery.String(), "length", localCore.Len())

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	status := newStatusTracker(localCore)
	status.start(ctx, 30*time.Second)
	defer status.stop()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr)
		defer srv.Close()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("datacored: listen: %w", err)
	}
	defer ln.Close()
	log.Info("listening", "addr", ln.Addr().String())

	go acceptLoop(ctx, ln, cfg, cores, status, secret)

	for _, addr := range cfg.Peers {
		go dialPeer(ctx, addr, cfg, cores, status, secret)
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func openCoreFromConfig(cfg *config.Config, public, secret []byte) (*core.Core, error) {
	content, err := storage.OpenDisk(cfg.ContentPath())
	if err != nil {
		return nil, err
	}
	blocks, err := storage.OpenDisk(cfg.BlockPath())
	if err != nil {
		return nil, err
	}
	state, err := storage.OpenDisk(cfg.StatePath())
	if err != nil {
		return nil, err
	}
	return core.Open(content, blocks, state, public, secret)
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	exporter := metrics.NewPrometheusExporter("datacore", metrics.DefaultRegistry)
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return srv
}

func acceptLoop(ctx context.Context, ln net.Listener, cfg config.Config, cores *registry.Cores, status *statusTracker, identity keys.SecretKey) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn("accept error", "error", err)
				continue
			}
		}
		go handleConn(ctx, conn, cfg, cores, false, status, identity)
	}
}

func dialPeer(ctx context.Context, addr string, cfg config.Config, cores *registry.Cores, status *statusTracker, identity keys.SecretKey) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		log.Warn("dial peer failed", "addr", addr, "error", err)
		return
	}
	handleConn(ctx, conn, cfg, cores, true, status, identity)
}

// handleConn drives one peer connection end to end: handshake, open every
// locally registered core over it, then serve replication events until
// the connection closes or ctx is cancelled.
func handleConn(ctx context.Context, conn net.Conn, cfg config.Config, cores *registry.Cores, initiator bool, status *statusTracker, identity keys.SecretKey) {
	defer conn.Close()

	direction := "inbound"
	if initiator {
		direction = "outbound"
	}
	closeTracking := status.connectionOpened(conn.RemoteAddr().String(), direction)
	defer closeTracking()

	keepalive := time.Duration(cfg.KeepaliveSeconds) * time.Second
	wireConn := wire.NewConn(conn, keepalive)

	rep, handle, err := replication.New(wireConn, initiator, noise.DefaultOptions(identity))
	if err != nil {
		log.Warn("handshake failed", "peer", conn.RemoteAddr(), "error", err)
		return
	}

	for _, c := range cores.Entries() {
		if err := handle.Open(ctx, c.PublicKey(), c.SecretKey(), replication.NewCoreReplica(c)); err != nil {
			log.Warn("open failed", "peer", conn.RemoteAddr(), "error", err)
			return
		}
	}

	onDiscovery := func(ctx context.Context, dk hash.Hash) error {
		c, ok := cores.GetByDiscovery(dk)
		if !ok {
			return nil
		}
		return handle.Open(ctx, c.PublicKey(), c.SecretKey(), replication.NewCoreReplica(c))
	}

	if err := rep.Run(ctx, onDiscovery); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("replication ended", "peer", conn.RemoteAddr(), "error", err)
	}
}
