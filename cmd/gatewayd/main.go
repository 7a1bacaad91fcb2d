package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgegate/internal/config"
	"github.com/danmuck/edgegate/internal/logging"
	"github.com/danmuck/edgegate/internal/server"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "cmd/gatewayd/config.toml", "gateway config path")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "gatewayd: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.LoadGatewayConfig(path)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, newEchoBot())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("config", path).Str("auth", cfg.Auth.Mode).Msg("gatewayd starting")
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("gatewayd stopped")
	return nil
}
