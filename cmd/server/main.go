package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Tyrowin/medrelay/internal/relay"
	"github.com/Tyrowin/medrelay/internal/server"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, using process environment", "error", err)
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := server.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	hub := relay.NewHub(relay.WithLogger(logger.With("component", "relay")))
	go hub.Run()
	logger.Info("relay hub started", "room", relay.DefaultRoom)

	srv := server.NewServer(cfg, hub, logger)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(srv))

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, logger)
			},
			"relay-hub": func(ctx context.Context) error {
				return hub.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("relay exited", "code", exitCode)
	os.Exit(exitCode)
}
