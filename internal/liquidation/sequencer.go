// Package liquidation implements the ordered fail-safe shutdown of all
// open positions. The load-bearing property is sequencing: trading is
// disabled before any position is touched, so a concurrent poll tick
// reading the flag mid-liquidation already sees it off.
package liquidation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/broker"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// Sequencer closes all positions after disabling trading.
type Sequencer interface {
	// LiquidateAll disables trading, then closes every open position.
	// If disabling fails, no position is touched and the error surfaces.
	// Partial close failures leave the flag off and are reported
	// per position for manual attention.
	LiquidateAll(ctx context.Context) (types.LiquidationReport, error)
}

// SequencerV1 implements Sequencer.
type SequencerV1 struct {
	store  store.Store
	broker broker.Broker
	log    *logger.Logger
}

// NewSequencer creates a liquidation sequencer.
func NewSequencer(s store.Store, b broker.Broker, log *logger.Logger) *SequencerV1 {
	return &SequencerV1{
		store:  s,
		broker: b,
		log:    log,
	}
}

// LiquidateAll implements Sequencer.
func (s *SequencerV1) LiquidateAll(ctx context.Context) (types.LiquidationReport, error) {
	report := types.LiquidationReport{Timestamp: time.Now().UTC()}

	// Step 1: kill the switch. This write must succeed before anything
	// else happens; on failure the flag keeps its previous value and no
	// position is touched.
	if err := s.store.Set(ctx, store.KeyTradingEnabled, "false", 0); err != nil {
		s.log.Error("Liquidation aborted, could not disable trading", zap.Error(err))

		return report, errors.Wrap(errors.ErrCodeLiquidationFailed,
			"failed to disable trading, no positions were touched", err)
	}

	report.TradingDisabled = true
	s.log.Warn("Trading disabled for liquidation")

	positions, err := s.broker.GetPositions(ctx)
	if err != nil {
		// The safe state is already locked in: flag stays false.
		return report, errors.Wrap(errors.ErrCodeLiquidationFailed,
			"trading disabled but positions could not be listed", err)
	}

	for _, position := range positions {
		result, closeErr := s.broker.ClosePosition(ctx, position.Symbol)
		if closeErr != nil {
			s.log.Error("Failed to close position",
				zap.String("symbol", position.Symbol),
				zap.Error(closeErr))
		} else {
			s.log.Info("Position closed",
				zap.String("symbol", position.Symbol),
				zap.Float64("quantity", position.Quantity))
		}

		report.Positions = append(report.Positions, result)
	}

	if !report.FullyClosed() {
		return report, errors.New(errors.ErrCodeLiquidationFailed,
			"liquidation incomplete: some positions need manual attention")
	}

	return report, nil
}

// Verify SequencerV1 implements the Sequencer interface.
var _ Sequencer = (*SequencerV1)(nil)
