// The collector process fetches market data from Polygon and publishes
// the per-symbol price and RSI snapshots.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/collector"
	"github.com/stackmesh/tradepilot/internal/config"
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

	client, err := collector.NewPolygonClient(cfg.Collector.PolygonAPIKey)
	if err != nil {
		return err
	}

	coll := collector.NewCollector(sharedStore, client,
		symbols.NewResolver(symbols.DefaultResolverConfig()), collector.Config{
			Symbols:       cfg.Symbols,
			FetchInterval: cfg.Collector.FetchInterval,
			RSIPeriod:     cfg.Collector.RSIPeriod,
		}, log)

	if err := coll.Start(); err != nil {
		return err
	}

	log.Info("Collector process up",
		zap.Strings("symbols", cfg.Symbols),
		zap.Duration("fetch_interval", cfg.Collector.FetchInterval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")

	return coll.Stop()
}

func main() {
	cmd := &cli.Command{
		Name:  "tradepilot-collector",
		Usage: "Run the market data collector",
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
