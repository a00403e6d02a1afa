// The executor process sweeps published signals through the trade safety
// gate and records the outcomes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/broker"
	"github.com/stackmesh/tradepilot/internal/config"
	"github.com/stackmesh/tradepilot/internal/executor"
	"github.com/stackmesh/tradepilot/internal/gate"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/symbols"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerAtLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	sharedStore, err := store.NewRedisStoreFromAddr(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB, log)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	resolver := symbols.NewResolver(symbols.DefaultResolverConfig())

	var venue broker.Broker
	if cfg.Broker.Kind == "binance" {
		venue = broker.NewBinanceBroker(broker.BinanceBrokerConfig{
			APIKey:        cfg.Broker.APIKey,
			SecretKey:     cfg.Broker.SecretKey,
			QuoteCurrency: cfg.Broker.QuoteCurrency,
			UseTestnet:    cfg.Broker.UseTestnet,
		}, resolver, log)
	} else {
		venue = broker.NewPaperBroker(cfg.Broker.PaperStartingCash)
	}

	gateConfig := gate.DefaultConfig(cfg.Executor.Sizing)
	gateConfig.EnforcePDT = cfg.Executor.EnforcePDT

	safetyGate := gate.NewSafetyGate(sharedStore, venue, gateConfig, log)

	exec := executor.NewExecutor(sharedStore, safetyGate, executor.Config{
		Symbols:       cfg.Symbols,
		SweepInterval: cfg.Executor.SweepInterval,
	}, log)

	if err := exec.Start(); err != nil {
		return err
	}

	log.Info("Executor process up",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("broker", cfg.Broker.Kind),
		zap.Duration("sweep_interval", cfg.Executor.SweepInterval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")

	return exec.Stop()
}

func main() {
	cmd := &cli.Command{
		Name:  "tradepilot-executor",
		Usage: "Run the trade executor sweep",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
