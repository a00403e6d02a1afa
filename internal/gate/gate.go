// Package gate implements the trade safety gate: the single decision point
// between a signal and an order. Every refusal is a skipped result with a
// reason; failed is reserved for attempts that were made and broke.
package gate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/broker"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// TradingDisabledMessage is the reason string attached to every skip
// caused by the global safety switch. Dashboards match on it.
const TradingDisabledMessage = "Trading is currently disabled"

// Synthetic order ids for results that never reached the venue. A trade
// result always carries a non-empty order id.
const (
	orderIDHoldDecision      = "hold-decision"
	orderIDTradingDisabled   = "trading-disabled"
	orderIDPDTRule           = "pdt-rule"
	orderIDInsufficientFunds = "insufficient-funds"
	orderIDOrderTooSmall     = "order-too-small"
	orderIDZeroQuantity      = "zero-quantity"
	orderIDPriceError        = "price-unavailable"
	orderIDAccountError      = "account-unavailable"
	orderIDOrderError        = "order-error"
	orderIDFlagError         = "flag-unavailable"
)

// Config controls the safety gate beyond sizing.
type Config struct {
	Sizing types.SizingConfig `json:"sizing" yaml:"sizing"`
	// EnforcePDT enables the pattern-day-trade check for equities.
	EnforcePDT bool `json:"enforce_pdt" yaml:"enforce_pdt"`
	// MaxDayTrades is the allowed round trips in the trailing five
	// business days.
	MaxDayTrades int `json:"max_day_trades" yaml:"max_day_trades"`
	// PDTEquityExemption is the account value above which PDT does not
	// apply.
	PDTEquityExemption float64 `json:"pdt_equity_exemption" yaml:"pdt_equity_exemption"`
}

// DefaultConfig returns the gate defaults: PDT enforced at 3 round trips
// with the $25k exemption, $10 venue minimum.
func DefaultConfig(sizing types.SizingConfig) Config {
	if sizing.MinOrderNotional == 0 {
		sizing.MinOrderNotional = 10.0
	}

	return Config{
		Sizing:             sizing,
		EnforcePDT:         true,
		MaxDayTrades:       3,
		PDTEquityExemption: 25000,
	}
}

// ForceTradingDisabled overwrites the global safety switch with "false".
// The control plane calls it on every cold start so a flag persisted by a
// previous run never re-enables trading on its own; an operator has to
// flip it back deliberately.
func ForceTradingDisabled(ctx context.Context, s store.Store, log *logger.Logger) error {
	if err := s.Set(ctx, store.KeyTradingEnabled, "false", 0); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to force trading disabled", err)
	}

	log.Info("Trading disabled on startup, enable it explicitly to trade")

	return nil
}

// SafetyGate evaluates signals against the global safety switch, sizing
// rules and account state, and places approved orders.
type SafetyGate interface {
	// Evaluate always returns a result; refusals and breakage are encoded
	// in the result's status and error fields, never silently dropped.
	Evaluate(ctx context.Context, signal types.Signal) types.TradeResult
}

// SafetyGateV1 implements SafetyGate.
type SafetyGateV1 struct {
	store  store.Store
	broker broker.Broker
	config Config
	log    *logger.Logger
	now    func() time.Time
}

// NewSafetyGate creates a safety gate.
func NewSafetyGate(s store.Store, b broker.Broker, config Config, log *logger.Logger) *SafetyGateV1 {
	return &SafetyGateV1{
		store:  s,
		broker: b,
		config: config,
		log:    log,
		now:    time.Now,
	}
}

// Evaluate implements SafetyGate.
func (g *SafetyGateV1) Evaluate(ctx context.Context, signal types.Signal) types.TradeResult {
	if !signal.Decision.IsActionable() {
		return g.skipped(signal, orderIDHoldDecision, "")
	}

	// The global switch short-circuits before any sizing or balance work.
	// An absent key is disabled; only an explicit "true" enables trading.
	enabled, err := g.store.Get(ctx, store.KeyTradingEnabled)
	if err != nil && !errors.HasCode(err, errors.ErrCodeKeyNotFound) {
		g.log.Error("Failed to read trading flag", zap.Error(err))

		return g.failed(signal, orderIDFlagError, "unable to read trading flag: "+err.Error())
	}

	if err != nil || enabled != "true" {
		return g.skipped(signal, orderIDTradingDisabled, TradingDisabledMessage)
	}

	price, err := g.broker.CurrentPrice(ctx, signal.Symbol)
	if err != nil {
		return g.failed(signal, orderIDPriceError, err.Error())
	}

	if price <= 0 {
		return g.failed(signal, orderIDPriceError, "invalid price for "+signal.Symbol)
	}

	account, err := g.broker.GetAccount(ctx)
	if err != nil {
		return g.failed(signal, orderIDAccountError, err.Error())
	}

	if reason := g.checkDayTradeLimit(ctx, signal.Symbol, account); reason != "" {
		return g.skipped(signal, orderIDPDTRule, reason)
	}

	quantity, notional, reason := g.size(signal, price, account)
	if reason != "" {
		return g.skipped(signal, reasonOrderID(reason), reason)
	}

	g.log.Info("Placing order",
		zap.String("symbol", signal.Symbol),
		zap.String("side", string(signal.Decision)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.Float64("notional", notional))

	confirmation, err := g.broker.PlaceMarketOrder(ctx, signal.Symbol, signal.Decision, quantity)
	if err != nil {
		// No retry here: the next cycle's fresh signal governs the next
		// attempt, so an ambiguous venue failure cannot double-submit.
		g.log.Error("Order failed",
			zap.String("symbol", signal.Symbol),
			zap.Error(err))

		return g.failed(signal, orderIDOrderError, err.Error())
	}

	executedPrice := confirmation.Price
	if executedPrice == 0 {
		executedPrice = price
	}

	return types.TradeResult{
		Symbol:    signal.Symbol,
		Decision:  signal.Decision,
		Status:    types.TradeStatusExecuted,
		OrderID:   confirmation.OrderID,
		Quantity:  optional.Some(confirmation.Quantity),
		Price:     optional.Some(executedPrice),
		Timestamp: g.now().UTC(),
	}
}

// size computes the order quantity. A non-empty reason means the trade is
// refused before reaching the venue.
func (g *SafetyGateV1) size(signal types.Signal, price float64, account types.AccountInfo) (quantity, notional float64, reason string) {
	var amount decimal.Decimal

	switch g.config.Sizing.Mode {
	case types.SizingModeFixed:
		amount = decimal.NewFromFloat(g.config.Sizing.FixedAmount.Unwrap())
	default:
		pct := decimal.NewFromFloat(g.config.Sizing.Percentage.Unwrap())
		amount = decimal.NewFromFloat(account.PortfolioValue).Mul(pct).Div(decimal.NewFromInt(100))
	}

	priceDec := decimal.NewFromFloat(price)
	qty := amount.Div(priceDec).Round(quantityDecimals(signal.Symbol))

	if qty.LessThanOrEqual(decimal.Zero) {
		return 0, 0, "quantity calculated as zero or negative"
	}

	orderValue := qty.Mul(priceDec)

	minNotional := decimal.NewFromFloat(g.config.Sizing.MinOrderNotional)
	if orderValue.LessThan(minNotional) {
		return 0, 0, "order value too small: $" + orderValue.StringFixed(2) +
			" (minimum $" + minNotional.StringFixed(2) + ")"
	}

	required, _ := amount.Float64()

	switch signal.Decision {
	case types.DecisionBuy:
		if required > account.Cash {
			return 0, 0, "insufficient funds: required $" + amount.StringFixed(2)
		}
	case types.DecisionSell:
		// Sells open short positions, so the constraint is buying power,
		// not held quantity.
		if required > account.BuyingPower {
			return 0, 0, "insufficient buying power: required $" + amount.StringFixed(2)
		}
	}

	q, _ := qty.Float64()
	n, _ := orderValue.Float64()

	return q, n, ""
}

// checkDayTradeLimit returns a non-empty reason when the PDT rule refuses
// the trade. It never applies to pairs, paper accounts, or accounts at or
// above the equity exemption.
func (g *SafetyGateV1) checkDayTradeLimit(ctx context.Context, symbol string, account types.AccountInfo) string {
	if !g.config.EnforcePDT || account.PaperTrading {
		return ""
	}

	if strings.Contains(symbol, "/") {
		return ""
	}

	if account.PortfolioValue >= g.config.PDTEquityExemption {
		return ""
	}

	count, err := g.broker.DayTradeCount(ctx)
	if err != nil {
		g.log.Warn("Failed to get day trade count, refusing trade",
			zap.String("symbol", symbol), zap.Error(err))

		return "Pattern Day Trader rule: day trade count unavailable"
	}

	if count >= g.config.MaxDayTrades {
		return "Pattern Day Trader rule: day trade limit reached (" +
			strconv.Itoa(count) + "/" + strconv.Itoa(g.config.MaxDayTrades) + " in 5 days)"
	}

	return ""
}

func (g *SafetyGateV1) skipped(signal types.Signal, orderID, reason string) types.TradeResult {
	return types.TradeResult{
		Symbol:    signal.Symbol,
		Decision:  signal.Decision,
		Status:    types.TradeStatusSkipped,
		OrderID:   orderID,
		Error:     reason,
		Timestamp: g.now().UTC(),
	}
}

func (g *SafetyGateV1) failed(signal types.Signal, orderID, reason string) types.TradeResult {
	return types.TradeResult{
		Symbol:    signal.Symbol,
		Decision:  signal.Decision,
		Status:    types.TradeStatusFailed,
		OrderID:   orderID,
		Error:     reason,
		Timestamp: g.now().UTC(),
	}
}

// quantityDecimals is the instrument's minimum increment expressed as
// decimal places: satoshi-level for BTC pairs, finer-grained ETH, whole
// cents of a share for equities.
func quantityDecimals(symbol string) int32 {
	switch {
	case strings.Contains(symbol, "BTC"):
		return 8
	case strings.Contains(symbol, "ETH"):
		return 6
	default:
		return 2
	}
}

func reasonOrderID(reason string) string {
	switch {
	case strings.HasPrefix(reason, "insufficient"):
		return orderIDInsufficientFunds
	case strings.HasPrefix(reason, "order value too small"):
		return orderIDOrderTooSmall
	default:
		return orderIDZeroQuantity
	}
}

// Verify SafetyGateV1 implements the SafetyGate interface.
var _ SafetyGate = (*SafetyGateV1)(nil)
