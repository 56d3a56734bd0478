// Package main is the entry point for the nbrelayd host relay. It serves
// guest agents over stdin/stdout (the qrexec model) or a unix socket,
// sanitizes what they send, and forwards it to the host notification
// daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/notibridge/notibridge/internal/config"
	"github.com/notibridge/notibridge/internal/dbus"
	"github.com/notibridge/notibridge/internal/journal"
	"github.com/notibridge/notibridge/internal/relay"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to the relay config file (default: ~/.config/notibridge/relay.toml)")
	peer := flag.String("peer", "", "Peer name for the stdio session (default: $QREXEC_REMOTE_DOMAIN)")
	socket := flag.String("socket", "", "Listen on a unix socket instead of serving stdin/stdout")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		println("nbrelayd version", version)
		os.Exit(0)
	}

	cfg, err := config.LoadRelayConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *socket != "" {
		cfg.Listen.Socket = *socket
	}

	// Stdout may carry frames, so logs always go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting nbrelayd", "version", version)

	emitter, err := dbus.NewEmitter(logger)
	if err != nil {
		logger.Error("failed to connect to the notification daemon", "error", err)
		os.Exit(1)
	}

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.JournalFile())
		if err != nil {
			logger.Warn("journal disabled", "error", err)
		} else {
			logger.Info("journal open", "path", jnl.Path())
		}
	}

	srv := relay.New(cfg, emitter, jnl, logger)
	if *peer != "" {
		srv.SetPeerName(*peer)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	// Hot-reload limits and policy on config file changes.
	watcher := startConfigWatcher(ctx, *configPath, srv, logger)

	err = srv.Run(ctx)

	if watcher != nil {
		watcher.Stop()
	}
	emitter.Stop()
	if jnl != nil {
		if closeErr := jnl.Close(); closeErr != nil {
			logger.Warn("error closing journal", "error", closeErr)
		}
	}

	if err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("nbrelayd stopped")
}

// startConfigWatcher polls the config file and applies valid changes to
// the server. Returns nil when the config path cannot be resolved.
func startConfigWatcher(ctx context.Context, path string, srv *relay.Server, logger *slog.Logger) *config.Watcher {
	if path == "" {
		var err error
		path, err = config.RelayConfigPath()
		if err != nil {
			logger.Warn("config watcher disabled", "error", err)
			return nil
		}
	}

	watcher := config.NewWatcher(path, logger)
	watcher.SetChangeCallback(func() {
		newCfg, err := config.LoadRelayConfig(path)
		if err != nil {
			logger.Warn("ignoring config change", "error", err)
			return
		}
		srv.SetConfig(newCfg)
		logger.Info("configuration reloaded", "path", path)
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
		return nil
	}
	return watcher
}
