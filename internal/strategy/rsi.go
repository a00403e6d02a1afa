package strategy

import (
	"time"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

const (
	defaultOverboughtThreshold = 70.0
	defaultOversoldThreshold   = 30.0
)

// RSIStrategy generates buy signals in oversold conditions and sell
// signals in overbought conditions. Confidence scales with how far the
// reading sits beyond the threshold, capped at 0.9.
type RSIStrategy struct {
	overbought float64
	oversold   float64
}

// NewRSIStrategy creates an RSI strategy with the default 70/30 thresholds.
func NewRSIStrategy() *RSIStrategy {
	return &RSIStrategy{
		overbought: defaultOverboughtThreshold,
		oversold:   defaultOversoldThreshold,
	}
}

// Configure replaces the thresholds. Fails when they are out of range or
// inverted.
func (s *RSIStrategy) Configure(overbought, oversold float64) error {
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return errors.Newf(errors.ErrCodeStrategyConfigError,
			"invalid rsi thresholds: overbought=%.1f oversold=%.1f", overbought, oversold)
	}

	s.overbought = overbought
	s.oversold = oversold

	return nil
}

// ID implements Strategy.
func (s *RSIStrategy) ID() string {
	return "rsi"
}

// Name implements Strategy.
func (s *RSIStrategy) Name() string {
	return "RSI Strategy"
}

// Description implements Strategy.
func (s *RSIStrategy) Description() string {
	return "Uses RSI values to identify overbought and oversold conditions"
}

// RequiredDataKeys implements Strategy.
func (s *RSIStrategy) RequiredDataKeys() []string {
	return []string{types.DataKeyRSI}
}

// ProcessData implements Strategy.
func (s *RSIStrategy) ProcessData(symbol string, data types.MarketSnapshot) (*types.Signal, error) {
	if data.RSI == nil {
		return nil, errors.Newf(errors.ErrCodeMarketDataMissing, "no rsi data for %s", symbol)
	}

	value := data.RSI.Value

	var (
		decision   types.Decision
		confidence float64
	)

	switch {
	case value <= s.oversold:
		decision = types.DecisionBuy
		confidence = min(0.9, 0.5+(s.oversold-value)/(s.oversold*2))
	case value >= s.overbought:
		decision = types.DecisionSell
		confidence = min(0.9, 0.5+(value-s.overbought)/((100-s.overbought)*2))
	default:
		// Neutral range, no verdict this tick.
		return nil, nil
	}

	return &types.Signal{
		Symbol:     symbol,
		Decision:   decision,
		Confidence: confidence,
		Strategy:   s.ID(),
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Verify RSIStrategy implements the Strategy interface.
var _ Strategy = (*RSIStrategy)(nil)
