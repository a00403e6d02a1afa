// Package broker abstracts the trading venue. The safety gate and the
// liquidation sequencer only ever talk to the Broker interface; the
// concrete adapters live alongside it.
package broker

import (
	"context"

	"github.com/stackmesh/tradepilot/internal/types"
)

// OrderConfirmation is the venue's acknowledgment of a placed order.
type OrderConfirmation struct {
	OrderID  string  `json:"order_id" yaml:"order_id"`
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Quantity float64 `json:"quantity" yaml:"quantity"`
	Price    float64 `json:"price" yaml:"price"`
}

// Broker is the trading venue contract. All calls are context-bound;
// implementations enforce a per-call timeout.
type Broker interface {
	// GetAccount returns the current account snapshot.
	GetAccount(ctx context.Context) (types.AccountInfo, error)
	// GetPositions returns all open positions with canonical symbols.
	GetPositions(ctx context.Context) ([]types.Position, error)
	// CurrentPrice returns the latest trade price for a canonical symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	// PlaceMarketOrder submits a market order. side must be buy or sell.
	PlaceMarketOrder(ctx context.Context, symbol string, side types.Decision, quantity float64) (OrderConfirmation, error)
	// ClosePosition closes the full position for a canonical symbol.
	ClosePosition(ctx context.Context, symbol string) (types.PositionCloseResult, error)
	// DayTradeCount returns the number of day-trade round trips in the
	// trailing five business days. Venues without a PDT concept return 0.
	DayTradeCount(ctx context.Context) (int, error)
}
