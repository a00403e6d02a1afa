// Package executor implements the trade execution sweep: it reads the
// signals the strategy manager publishes and pushes each new one through
// the safety gate exactly once.
package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/gate"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

const (
	// DefaultSweepInterval is the executor poll cadence.
	DefaultSweepInterval = 10 * time.Second
	// signalMaxAge guards against acting on a signal from a stalled
	// manager. Older signals are ignored, never executed.
	signalMaxAge = 5 * time.Minute
	// tradeCooldown is the minimum spacing between executed trades on the
	// same symbol.
	tradeCooldown = 300 * time.Second
	// resultTTL bounds the lifetime of trade results in the store.
	resultTTL = 24 * time.Hour

	stopWait = 5 * time.Second
)

// Config controls the executor sweep.
type Config struct {
	// Symbols is the set of instruments the executor watches.
	Symbols []string `json:"symbols" yaml:"symbols" validate:"required,min=1"`
	// SweepInterval overrides DefaultSweepInterval when positive.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// Executor owns the execution sweep loop.
type Executor interface {
	// Start launches the sweep loop. Returns ErrCodeAlreadyRunning if the
	// loop is active.
	Start() error
	// Stop cancels the sweep loop and waits, bounded, for it to exit.
	Stop() error
	// IsRunning reports whether the sweep loop is active.
	IsRunning() bool
	// SweepOnce runs a single sweep over all symbols. Used by the loop and
	// callable directly for a forced pass.
	SweepOnce(ctx context.Context)
}

// ExecutorV1 implements Executor.
type ExecutorV1 struct {
	store  store.Store
	gate   gate.SafetyGate
	config Config
	log    *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// lastProcessed maps symbol -> timestamp of the newest signal already
	// pushed through the gate. A signal is acted on at most once.
	lastProcessed map[string]time.Time
	// cooldownUntil maps symbol -> earliest time a new trade may execute.
	cooldownUntil map[string]time.Time

	now func() time.Time
}

// NewExecutor creates an executor sweep over the configured symbols.
func NewExecutor(s store.Store, g gate.SafetyGate, config Config, log *logger.Logger) *ExecutorV1 {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}

	return &ExecutorV1{
		store:         s,
		gate:          g,
		config:        config,
		log:           log,
		lastProcessed: make(map[string]time.Time),
		cooldownUntil: make(map[string]time.Time),
		now:           time.Now,
	}
}

// Start implements Executor.
func (e *ExecutorV1) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New(errors.ErrCodeAlreadyRunning, "executor is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	done := e.done

	e.log.Info("Executor starting",
		zap.Strings("symbols", e.config.Symbols),
		zap.Duration("interval", e.config.SweepInterval))

	go func() {
		defer close(done)
		e.run(ctx)
	}()

	return nil
}

// Stop implements Executor.
func (e *ExecutorV1) Stop() error {
	e.mu.Lock()

	if !e.running {
		e.mu.Unlock()

		return errors.New(errors.ErrCodeNotRunning, "executor is not running")
	}

	cancel := e.cancel
	done := e.done
	e.running = false
	e.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(stopWait):
		e.log.Warn("Executor loop did not exit in time")
	}

	return nil
}

// IsRunning implements Executor.
func (e *ExecutorV1) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.running
}

func (e *ExecutorV1) run(ctx context.Context) {
	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	e.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepOnce(ctx)
		}
	}
}

// SweepOnce implements Executor.
func (e *ExecutorV1) SweepOnce(ctx context.Context) {
	for _, symbol := range e.config.Symbols {
		e.sweepSymbol(ctx, symbol)
	}
}

func (e *ExecutorV1) sweepSymbol(ctx context.Context, symbol string) {
	var signal types.Signal

	err := e.store.GetJSON(ctx, store.KeySignal(symbol), &signal)
	if err != nil {
		if !errors.HasCode(err, errors.ErrCodeKeyNotFound) {
			e.log.Error("Failed to read signal",
				zap.String("symbol", symbol),
				zap.Error(err))
		}

		return
	}

	now := e.now()

	if now.Sub(signal.Timestamp) > signalMaxAge {
		e.log.Debug("Ignoring stale signal",
			zap.String("symbol", symbol),
			zap.Time("signal_time", signal.Timestamp))

		return
	}

	e.mu.Lock()
	last, seen := e.lastProcessed[symbol]
	cooldown := e.cooldownUntil[symbol]
	e.mu.Unlock()

	if seen && !signal.Timestamp.After(last) {
		return
	}

	if signal.Decision.IsActionable() && now.Before(cooldown) {
		e.log.Debug("Symbol is cooling down",
			zap.String("symbol", symbol),
			zap.Time("until", cooldown))

		return
	}

	result := e.gate.Evaluate(ctx, signal)
	result.Timestamp = now

	e.mu.Lock()
	e.lastProcessed[symbol] = signal.Timestamp

	if result.Status == types.TradeStatusExecuted {
		e.cooldownUntil[symbol] = now.Add(tradeCooldown)
	}
	e.mu.Unlock()

	if err := e.store.SetJSON(ctx, store.KeyTradeResult(symbol), result, resultTTL); err != nil {
		e.log.Error("Failed to write trade result",
			zap.String("symbol", symbol),
			zap.Error(err))

		return
	}

	e.log.Info("Signal evaluated",
		zap.String("symbol", symbol),
		zap.String("decision", string(signal.Decision)),
		zap.String("status", string(result.Status)),
		zap.String("order_id", result.OrderID))
}

// Verify ExecutorV1 implements the Executor interface.
var _ Executor = (*ExecutorV1)(nil)
