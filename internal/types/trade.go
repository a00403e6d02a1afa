package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// TradeStatus is the outcome class of one attempt to act on a signal.
type TradeStatus string

const (
	// TradeStatusExecuted means an order was placed and accepted
	TradeStatusExecuted TradeStatus = "executed"
	// TradeStatusSkipped means the attempt was correctly refused (safety
	// violation, disabled trading, hold decision). Never an error condition.
	TradeStatusSkipped TradeStatus = "skipped"
	// TradeStatusFailed means the attempt was made and broke (broker or
	// transport error)
	TradeStatusFailed TradeStatus = "failed"
)

// TradeResult is the outcome of evaluating one signal, written to
// trade_result:<symbol>. Immutable once written; superseded by later attempts.
type TradeResult struct {
	Symbol   string      `json:"symbol" yaml:"symbol" validate:"required"`
	Decision Decision    `json:"decision" yaml:"decision" validate:"required,oneof=buy sell hold"`
	Status   TradeStatus `json:"status" yaml:"status" validate:"required,oneof=executed skipped failed"`
	// OrderID is always a non-empty string so downstream consumers never
	// have to handle a missing id. Skipped results carry a synthetic id.
	OrderID string `json:"order_id" yaml:"order_id" validate:"required"`
	// Quantity is the executed quantity. None unless status is executed.
	Quantity optional.Option[float64] `json:"quantity" yaml:"quantity"`
	// Price is the execution price estimate. None unless status is executed.
	Price optional.Option[float64] `json:"price" yaml:"price"`
	// Error is the human-readable reason for a skip or failure. Empty on success.
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Position is a broker-reported holding reconciled to a canonical symbol.
type Position struct {
	// Symbol is the canonical instrument identifier, not the broker's raw form
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Quantity     float64 `json:"quantity" yaml:"quantity"`
	MarketValue  float64 `json:"market_value" yaml:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl" yaml:"unrealized_pl"`
	CurrentPrice float64 `json:"current_price" yaml:"current_price"`
}

// PositionCloseResult reports the outcome of closing one position during liquidation.
type PositionCloseResult struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Closed bool   `json:"closed" yaml:"closed"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// LiquidationReport aggregates the outcome of a liquidate-all request.
// TradingDisabled is true when the safety flag write succeeded before any
// position was touched.
type LiquidationReport struct {
	TradingDisabled bool                  `json:"trading_disabled" yaml:"trading_disabled"`
	Positions       []PositionCloseResult `json:"positions" yaml:"positions"`
	Timestamp       time.Time             `json:"timestamp" yaml:"timestamp"`
}

// FullyClosed reports whether every position close succeeded.
func (r LiquidationReport) FullyClosed() bool {
	for _, p := range r.Positions {
		if !p.Closed {
			return false
		}
	}

	return true
}
