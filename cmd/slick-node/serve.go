package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rattab/slick/internal/config"
	"github.com/rattab/slick/internal/daemon"
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/gossip"
)

// loadConfig resolves a slick-node config file (explicit path, or the
// standard search-path cascade) and fills in defaults for anything
// unset. A completely absent config is not an error: slick-node runs
// fine with DefaultNodeConfig.
func loadConfig(explicitPath string) (*config.NodeConfig, string, error) {
	path, err := config.FindConfigFile(explicitPath)
	if err != nil {
		if explicitPath != "" {
			return nil, "", err
		}
		cfg := config.DefaultNodeConfig()
		return &cfg, "", nil
	}

	cfg, err := config.LoadNodeConfig(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(path))
	return cfg, path, nil
}

// cookiePathFor derives the daemon's auth-cookie path from its socket
// path, matching the teacher's "cookie file lives next to the socket"
// convention.
func cookiePathFor(socketPath string) string {
	return filepath.Join(filepath.Dir(socketPath), ".slick-node-cookie")
}

// runtimeAdapter implements daemon.RuntimeInfo on top of a gossip.Engine.
type runtimeAdapter struct {
	engine  *gossip.Engine
	version string
}

func (r *runtimeAdapter) Snapshot(ctx context.Context) (gossip.Snapshot, error) {
	return r.engine.Snapshot(ctx)
}
func (r *runtimeAdapter) Version() string { return r.version }

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, path, err := loadConfig(*configFlag)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	if path != "" {
		slog.Info("config loaded", "path", path)
	} else {
		slog.Info("no config file found, using defaults")
	}

	fmt.Printf("slick-node %s (%s)\n", version, commit)

	gcfg := gossip.Config{
		Port:          cfg.Gossip.Port,
		ListenAddr:    cfg.Gossip.ListenAddr,
		Period:        cfg.Gossip.Period,
		TTL:           cfg.Gossip.TTL,
		ConnExpThresh: cfg.Gossip.ConnExpThresh,
		Seeds:         cfg.Gossip.Seeds,
		HistoryPath:   cfg.Gossip.HistoryPath,
	}

	var selfLoc slick.NodeLocation
	if gcfg.ListenAddr != "" {
		host, port, err := splitHostPort(gcfg.ListenAddr)
		if err != nil {
			fatal("invalid listen_address: %v", err)
		}
		selfLoc = slick.NodeLocation{{Host: host, Port: port}}
	} else {
		selfLoc = slick.NodeLocation{{Host: "0.0.0.0", Port: gcfg.Port}}
	}

	metrics := slick.NewMetrics()
	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(metrics, cfg.Telemetry.Metrics.ListenAddress)
	}

	engine, err := gossip.New(gcfg, selfLoc, metrics)
	if err != nil {
		fatal("Failed to create gossip engine: %v", err)
	}

	fmt.Printf("Node ID: %s\n", engine.ID())
	fmt.Printf("Listening on: %s\n", selfLoc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// The poll goroutine: drives the gossip engine's single-threaded
	// event loop until shutdown. golang.org/x/sync/errgroup coordinates
	// this goroutine with the introspection server's shutdown below: a
	// Poll error or a shutdown signal cancels the group context, which
	// stops both. An HTTP serve error is only logged and cancels nothing.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			if err := engine.Poll(500 * time.Millisecond); err != nil {
				return err
			}
		}
	})

	var srv *daemon.Server
	if cfg.Daemon.Enabled {
		srv = daemon.NewServer(&runtimeAdapter{engine: engine, version: version}, cfg.Daemon.SocketPath, cookiePathFor(cfg.Daemon.SocketPath), version)
		srv.SetInstrumentation(metrics)
		if err := srv.Start(); err != nil {
			cancel()
			engine.Shutdown()
			fatal("Daemon API failed to start: %v", err)
		}
		fmt.Printf("Daemon API: %s\n", cfg.Daemon.SocketPath)

		g.Go(func() error {
			<-gctx.Done()
			srv.Stop()
			return nil
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("slick-node exited with error", "err", err)
	}
	engine.Shutdown()
	fmt.Println("slick-node stopped.")
}

// startMetricsServer starts the /metrics HTTP endpoint in the
// background, matching the teacher's (*serveRuntime).StartMetricsServer.
func startMetricsServer(metrics *slick.Metrics, addr string) {
	if addr == "" {
		addr = "127.0.0.1:9091"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics endpoint started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics endpoint error", "err", err)
		}
	}()
}

func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, uint16(port), nil
}
