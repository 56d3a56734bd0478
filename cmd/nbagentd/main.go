// Package main is the entry point for the nbagentd guest agent. It claims
// org.freedesktop.Notifications on the guest session bus and forwards
// everything over the bridge to the host relay.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/notibridge/notibridge/internal/agent"
	"github.com/notibridge/notibridge/internal/config"
	"github.com/notibridge/notibridge/internal/dbus"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to the agent config file (default: ~/.config/notibridge/agent.toml)")
	socket := flag.String("socket", "", "Connect to a relay unix socket instead of the configured command")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		println("nbagentd version", version)
		os.Exit(0)
	}

	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *socket != "" {
		cfg.Relay.Socket = *socket
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting nbagentd", "version", version)

	server := dbus.NewServer(logger)
	info := dbus.DefaultServerInfo()
	info.Version = version
	server.SetServerInfo(info)

	a := agent.New(cfg, server, logger)
	server.SetNotifyHandler(a.HandleNotify)
	server.SetCloseHandler(a.HandleClose)

	if err := server.Start(); err != nil {
		logger.Error("failed to start D-Bus server", "error", err)
		os.Exit(1)
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

	err = a.Run(ctx)

	if stopErr := server.Stop(); stopErr != nil {
		logger.Warn("error stopping D-Bus server", "error", stopErr)
	}
	if err != nil {
		logger.Error("agent failed", "error", err)
		os.Exit(1)
	}

	logger.Info("nbagentd stopped")
}
