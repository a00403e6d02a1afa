// Package manager implements the strategy manager: the process-wide
// coordinator that owns the poll loop and is the only writer of per-symbol
// signals. Operator commands arrive concurrently with the loop; a single
// mutex guards the running state, and the loop never holds it while a
// strategy executes.
package manager

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/strategy"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

const (
	// signalTTL bounds how long a stale signal can linger in the store.
	signalTTL = 24 * time.Hour

	// stopWait bounds how long Stop waits for the loop to observe
	// cancellation.
	stopWait = 5 * time.Second

	// DefaultInterval is the poll interval used when a command carries none.
	DefaultInterval = 60 * time.Second
)

type managerState string

const (
	stateStopped  managerState = "stopped"
	stateStarting managerState = "starting"
	stateRunning  managerState = "running"
	stateStopping managerState = "stopping"
)

// TieBreakPolicy selects the winning signal when enabled strategies
// disagree on a symbol.
type TieBreakPolicy string

const (
	// TieBreakHighestConfidence picks the highest-confidence non-hold
	// signal; equal confidence goes to the most recently registered
	// strategy.
	TieBreakHighestConfidence TieBreakPolicy = "highest_confidence"
	// TieBreakRegistrationOrder picks the signal from the earliest
	// registered strategy regardless of confidence.
	TieBreakRegistrationOrder TieBreakPolicy = "registration_order"
)

// Config configures the strategy manager.
type Config struct {
	// Symbols are the instruments polled each cycle.
	Symbols []string `json:"symbols" yaml:"symbols" validate:"required,min=1"`
	// TieBreak selects the winner between disagreeing strategies.
	TieBreak TieBreakPolicy `json:"tie_break" yaml:"tie_break"`
}

// StrategyManager is the coordinator contract. One instance is owned by
// the process composition root and injected into command handlers.
type StrategyManager interface {
	// Start launches the poll loop. Fails with ErrCodeAlreadyRunning
	// unless the manager is stopped. Non-blocking.
	Start(interval time.Duration) error
	// Stop cancels the poll loop and waits, bounded, for it to exit.
	// Fails with ErrCodeNotRunning when the manager is not running.
	Stop() error
	// Enable toggles a strategy. Takes effect on the next tick.
	Enable(strategyID string, enabled bool) error
	// IsRunning reports whether the poll loop is active.
	IsRunning() bool
	// Interval returns the active poll interval, zero when stopped.
	Interval() time.Duration
}

// StrategyManagerV1 implements StrategyManager.
type StrategyManagerV1 struct {
	registry strategy.Registry
	store    store.Store
	config   Config
	log      *logger.Logger

	mu       sync.Mutex
	state    managerState
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	now func() time.Time
}

// NewStrategyManager creates a stopped manager.
func NewStrategyManager(registry strategy.Registry, s store.Store, config Config, log *logger.Logger) *StrategyManagerV1 {
	if config.TieBreak == "" {
		config.TieBreak = TieBreakHighestConfidence
	}

	return &StrategyManagerV1{
		registry: registry,
		store:    s,
		config:   config,
		log:      log,
		state:    stateStopped,
		now:      time.Now,
	}
}

// Start implements StrategyManager.
func (m *StrategyManagerV1) Start(interval time.Duration) error {
	if interval <= 0 {
		return errors.Newf(errors.ErrCodeInvalidInterval, "poll interval must be positive, got %v", interval)
	}

	m.mu.Lock()

	if m.state != stateStopped {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeAlreadyRunning, "manager is %s", m.state)
	}

	m.state = stateStarting
	m.interval = interval

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done

	m.state = stateRunning
	m.mu.Unlock()

	m.writeRunState(ctx, true, interval)

	go func() {
		defer close(done)
		m.run(ctx, interval)
	}()

	m.log.Info("Strategy manager started", zap.Duration("interval", interval))

	return nil
}

// Stop implements StrategyManager. Idempotent: the second call in a row
// returns ErrCodeNotRunning and leaves the state stopped.
func (m *StrategyManagerV1) Stop() error {
	m.mu.Lock()

	if m.state != stateRunning {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeNotRunning, "manager is %s", m.state)
	}

	m.state = stateStopping
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(stopWait):
		m.log.Warn("Poll loop did not exit within the stop wait")
	}

	m.mu.Lock()
	m.state = stateStopped
	m.interval = 0
	m.mu.Unlock()

	m.writeRunState(context.Background(), false, 0)
	m.log.Info("Strategy manager stopped")

	return nil
}

// Enable implements StrategyManager.
func (m *StrategyManagerV1) Enable(strategyID string, enabled bool) error {
	if err := m.registry.SetEnabled(strategyID, enabled); err != nil {
		return err
	}

	m.log.Info("Strategy toggled",
		zap.String("strategy", strategyID),
		zap.Bool("enabled", enabled))

	// Persist immediately so dashboards converge before the next tick.
	ctx, cancel := context.WithTimeout(context.Background(), store.DefaultCallTimeout)
	defer cancel()
	m.persistRegistry(ctx)

	return nil
}

// IsRunning implements StrategyManager.
func (m *StrategyManagerV1) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state == stateRunning
}

// Interval implements StrategyManager.
func (m *StrategyManagerV1) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.interval
}

// run is the poll loop. Cancellation is cooperative: checked at the top
// of each cycle, never mid-strategy.
func (m *StrategyManagerV1) run(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			// A crash mid-tick leaves a poisoned marker that only reset
			// clears; health reports it as an error condition.
			m.log.Error("Poll loop crashed", zap.Any("panic", r))
			m.writePoisonMarker(fmt.Sprintf("poll loop crashed: %v", r))
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one poll cycle.
func (m *StrategyManagerV1) tick(ctx context.Context) {
	// Copy the enabled set up front; strategies execute without any
	// registry lock held so a hung strategy cannot block operator toggles.
	enabled := m.registry.Enabled()

	m.persistRegistry(ctx)

	for _, symbol := range m.config.Symbols {
		if ctx.Err() != nil {
			return
		}

		m.evaluateSymbol(ctx, symbol, enabled)
	}

	m.writeHeartbeat(ctx)
}

// evaluateSymbol runs every satisfied strategy for one symbol and writes
// the winning signal.
func (m *StrategyManagerV1) evaluateSymbol(ctx context.Context, symbol string, enabled []strategy.Strategy) {
	snapshot, err := m.readSnapshot(ctx, symbol)
	if err != nil {
		// Data-source trouble skips only this symbol this tick.
		m.log.Warn("Skipping symbol, data unavailable",
			zap.String("symbol", symbol), zap.Error(err))

		return
	}

	var signals []*types.Signal

	for _, strat := range enabled {
		if !satisfied(strat, snapshot) {
			continue
		}

		signal := m.runStrategy(strat, symbol, snapshot)
		if signal != nil && signal.Decision.IsActionable() {
			signals = append(signals, signal)
		}
	}

	winner := m.selectSignal(signals)
	if winner == nil {
		return
	}

	if err := m.store.SetJSON(ctx, store.KeySignal(symbol), winner, signalTTL); err != nil {
		m.log.Error("Failed to write signal",
			zap.String("symbol", symbol), zap.Error(err))

		return
	}

	m.log.Info("Signal written",
		zap.String("symbol", symbol),
		zap.String("decision", string(winner.Decision)),
		zap.Float64("confidence", winner.Confidence),
		zap.String("strategy", winner.Strategy))
}

// runStrategy executes one strategy, isolating panics so a broken
// strategy never aborts the cycle for the others.
func (m *StrategyManagerV1) runStrategy(strat strategy.Strategy, symbol string, snapshot types.MarketSnapshot) (signal *types.Signal) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Strategy panicked",
				zap.String("strategy", strat.ID()),
				zap.String("symbol", symbol),
				zap.Any("panic", r))

			signal = nil
		}
	}()

	signal, err := strat.ProcessData(symbol, snapshot)
	if err != nil {
		m.log.Warn("Strategy failed",
			zap.String("strategy", strat.ID()),
			zap.String("symbol", symbol),
			zap.Error(err))

		return nil
	}

	return signal
}

// selectSignal applies the tie-break policy to disagreeing strategies.
func (m *StrategyManagerV1) selectSignal(signals []*types.Signal) *types.Signal {
	if len(signals) == 0 {
		return nil
	}

	best := signals[0]

	for _, candidate := range signals[1:] {
		switch m.config.TieBreak {
		case TieBreakRegistrationOrder:
			if m.registry.RegistrationIndex(candidate.Strategy) < m.registry.RegistrationIndex(best.Strategy) {
				best = candidate
			}
		default:
			if candidate.Confidence > best.Confidence {
				best = candidate
			} else if candidate.Confidence == best.Confidence &&
				m.registry.RegistrationIndex(candidate.Strategy) > m.registry.RegistrationIndex(best.Strategy) {
				best = candidate
			}
		}
	}

	return best
}

// readSnapshot assembles the market snapshot for one symbol from the
// collector's store keys. Missing keys leave nil fields; a store failure
// is returned so the caller skips the symbol.
func (m *StrategyManagerV1) readSnapshot(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	var snapshot types.MarketSnapshot

	var price types.PricePoint
	switch err := m.store.GetJSON(ctx, store.KeyPrice(symbol), &price); {
	case err == nil:
		snapshot.Price = &price
	case !errors.HasCode(err, errors.ErrCodeKeyNotFound):
		return snapshot, err
	}

	var rsi types.RSIPoint
	switch err := m.store.GetJSON(ctx, store.KeyRSI(symbol), &rsi); {
	case err == nil:
		snapshot.RSI = &rsi
	case !errors.HasCode(err, errors.ErrCodeKeyNotFound):
		return snapshot, err
	}

	var sentiment types.SentimentPoint
	switch err := m.store.GetJSON(ctx, store.KeySentiment(symbol), &sentiment); {
	case err == nil:
		snapshot.Sentiment = &sentiment
	case !errors.HasCode(err, errors.ErrCodeKeyNotFound):
		return snapshot, err
	}

	return snapshot, nil
}

// writeHeartbeat records liveness once per cycle.
func (m *StrategyManagerV1) writeHeartbeat(ctx context.Context) {
	heartbeat := types.ManagerHeartbeat{
		LastTickAt:    m.now().UTC(),
		Status:        types.ManagerStatusRunning,
		StatusMessage: "poll cycle completed",
		Interval:      int(m.Interval().Seconds()),
	}

	if err := m.store.SetJSON(ctx, store.KeyManagerHeartbeat, heartbeat, 0); err != nil {
		m.log.Error("Failed to write heartbeat", zap.Error(err))
	}
}

// persistRegistry mirrors the enabled set and strategy descriptors into
// the store so other processes can enumerate them.
func (m *StrategyManagerV1) persistRegistry(ctx context.Context) {
	descriptors := m.registry.List()

	enabledSet := make(map[string]bool, len(descriptors))

	for _, descriptor := range descriptors {
		enabledSet[descriptor.ID] = descriptor.Enabled

		if err := m.store.SetJSON(ctx, store.KeyStrategyInfo(descriptor.ID), descriptor, 0); err != nil {
			m.log.Error("Failed to write strategy descriptor",
				zap.String("strategy", descriptor.ID), zap.Error(err))
		}
	}

	if err := m.store.SetJSON(ctx, store.KeyManagerEnabledSet, enabledSet, 0); err != nil {
		m.log.Error("Failed to write enabled set", zap.Error(err))
	}
}

// writeRunState mirrors the running flag and interval into the store.
func (m *StrategyManagerV1) writeRunState(ctx context.Context, running bool, interval time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, store.DefaultCallTimeout)
	defer cancel()

	if err := m.store.Set(ctx, store.KeyManagerRunning, strconv.FormatBool(running), 0); err != nil {
		m.log.Error("Failed to write running marker", zap.Error(err))
	}

	if running {
		if err := m.store.Set(ctx, store.KeyManagerInterval, strconv.Itoa(int(interval.Seconds())), 0); err != nil {
			m.log.Error("Failed to write interval", zap.Error(err))
		}
	}
}

func (m *StrategyManagerV1) writePoisonMarker(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), store.DefaultCallTimeout)
	defer cancel()

	if err := m.store.Set(ctx, store.KeyManagerError, message, 0); err != nil {
		m.log.Error("Failed to write error marker", zap.Error(err))
	}
}

// satisfied reports whether the snapshot covers every data key the
// strategy requires.
func satisfied(strat strategy.Strategy, snapshot types.MarketSnapshot) bool {
	for _, key := range strat.RequiredDataKeys() {
		if !snapshot.Has(key) {
			return false
		}
	}

	return true
}

// Verify StrategyManagerV1 implements the StrategyManager interface.
var _ StrategyManager = (*StrategyManagerV1)(nil)
