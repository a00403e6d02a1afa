// The manager process runs the strategy poll loop, the command listener
// and the operator API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/api"
	"github.com/stackmesh/tradepilot/internal/broker"
	"github.com/stackmesh/tradepilot/internal/config"
	"github.com/stackmesh/tradepilot/internal/gate"
	"github.com/stackmesh/tradepilot/internal/health"
	"github.com/stackmesh/tradepilot/internal/liquidation"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/manager"
	"github.com/stackmesh/tradepilot/internal/restart"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/strategy"
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

	// Cold starts never inherit a trading flag from a previous run.
	if err := gate.ForceTradingDisabled(ctx, sharedStore, log); err != nil {
		return err
	}

	resolver := symbols.NewResolver(symbols.DefaultResolverConfig())

	registry := strategy.NewRegistry()

	rsi := strategy.NewRSIStrategy()
	if cfg.Manager.RSIOverbought > 0 && cfg.Manager.RSIOversold > 0 {
		if err := rsi.Configure(cfg.Manager.RSIOverbought, cfg.Manager.RSIOversold); err != nil {
			return err
		}
	}

	if err := registry.Register(rsi); err != nil {
		return err
	}

	if err := registry.Register(strategy.NewSentimentStrategy()); err != nil {
		return err
	}

	mgr := manager.NewStrategyManager(registry, sharedStore, manager.Config{
		Symbols:  cfg.Symbols,
		TieBreak: manager.TieBreakPolicy(cfg.Manager.TieBreak),
	}, log)

	monitor := health.NewMonitor(sharedStore, log)
	controller := restart.NewController(sharedStore, monitor, log)

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

	sequencer := liquidation.NewSequencer(sharedStore, venue, log)

	listener := manager.NewCommandListener(mgr, sharedStore, controller, log)

	listenerCtx, cancelListener := context.WithCancel(context.Background())
	defer cancelListener()

	go func() {
		if err := listener.Listen(listenerCtx); err != nil {
			log.Error("Command listener exited", zap.Error(err))
		}
	}()

	server := api.NewServer(mgr, registry, monitor, controller, sequencer, sharedStore, log)
	if err := server.Start(cfg.API.ListenAddr); err != nil {
		return err
	}

	if err := mgr.Start(cfg.Manager.PollInterval); err != nil {
		return err
	}

	log.Info("Manager process up",
		zap.Strings("symbols", cfg.Symbols),
		zap.Duration("poll_interval", cfg.Manager.PollInterval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")

	if err := mgr.Stop(); err != nil {
		log.Warn("Manager stop", zap.Error(err))
	}

	if err := server.Stop(); err != nil {
		log.Warn("API stop", zap.Error(err))
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "tradepilot-manager",
		Usage: "Run the strategy manager, command listener and operator API",
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
