// Command server runs the gatehouse request-admission gateway.
//
// Configuration is read from a YAML file (-config, GATEHOUSE_CONFIG,
// ./config.yaml or /etc/gatehouse/config.yaml) and GATEHOUSE_* environment
// overrides. See config.example.yaml.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/gatehouse/pkg/config"
	"github.com/rhuss/gatehouse/pkg/debug"
	"github.com/rhuss/gatehouse/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	closer := debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []gateway.Option
	dir, err := gateway.OpenUserDirectory(ctx, cfg.Auth.UserStore)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	if dir != nil {
		defer dir.Close()
		opts = append(opts, gateway.WithUserStore(dir.Store), gateway.WithReadiness(dir.Ready))
		slog.Info("user store connected", "type", cfg.Auth.UserStore.Type)
	}

	gw, err := gateway.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	srv := gateway.NewServer(gw.Handler(), cfg.Server)
	return srv.ListenAndServe(ctx)
}
