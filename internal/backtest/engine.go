// Package backtest replays historical candles through the live Strategy
// contract. Fills are simulated with a slippage and commission model so a
// strategy can be graded before it is allowed near the registry.
package backtest

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/collector"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/strategy"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// Config controls one backtest run.
type Config struct {
	// StartingCash is the simulated account's initial balance.
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash" validate:"gt=0"`
	// Sizing derives order notional the same way the live gate does.
	Sizing types.SizingConfig `json:"sizing" yaml:"sizing"`
	// SlippageBps moves every fill against the order by this many basis
	// points of the candle close.
	SlippageBps float64 `json:"slippage_bps" yaml:"slippage_bps" validate:"gte=0"`
	// RSIPeriod feeds the snapshot indicator. Zero means the default.
	RSIPeriod int `json:"rsi_period" yaml:"rsi_period"`
	// Commission is the fee model. Nil means zero commission.
	Commission CommissionModel `json:"-" yaml:"-"`
}

// Trade is one simulated fill.
type Trade struct {
	Symbol     string         `json:"symbol" yaml:"symbol"`
	Side       types.Decision `json:"side" yaml:"side"`
	Quantity   float64        `json:"quantity" yaml:"quantity"`
	Price      float64        `json:"price" yaml:"price"`
	Commission float64        `json:"commission" yaml:"commission"`
	// PnL is realized profit on sells, zero on buys.
	PnL       float64   `json:"pnl" yaml:"pnl"`
	Strategy  string    `json:"strategy" yaml:"strategy"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Result summarizes one backtest run.
type Result struct {
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash"`
	FinalEquity  float64 `json:"final_equity" yaml:"final_equity"`
	// Return is the fractional gain, e.g. 0.1 for +10%.
	Return      float64 `json:"return" yaml:"return"`
	Trades      []Trade `json:"trades" yaml:"trades"`
	Wins        int     `json:"wins" yaml:"wins"`
	Losses      int     `json:"losses" yaml:"losses"`
	MaxDrawdown float64 `json:"max_drawdown" yaml:"max_drawdown"`
}

type position struct {
	quantity decimal.Decimal
	avgEntry decimal.Decimal
}

// EngineV1 replays candles through a single strategy.
type EngineV1 struct {
	strategy strategy.Strategy
	config   Config
	log      *logger.Logger
}

// NewEngine creates a backtest engine for one strategy.
func NewEngine(strat strategy.Strategy, config Config, log *logger.Logger) (*EngineV1, error) {
	if config.StartingCash <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "starting cash must be positive")
	}

	if err := config.Sizing.Validate(); err != nil {
		return nil, err
	}

	if config.Commission == nil {
		config.Commission = NewZeroCommission()
	}

	if config.RSIPeriod <= 0 {
		config.RSIPeriod = collector.DefaultRSIPeriod
	}

	return &EngineV1{
		strategy: strat,
		config:   config,
		log:      log,
	}, nil
}

// Run replays the candles in order. Candles must be chronological; bars
// for different symbols may interleave.
func (e *EngineV1) Run(candles []types.Candle) (Result, error) {
	if len(candles) == 0 {
		return Result{}, errors.New(errors.ErrCodeInvalidParameter, "no candles to replay")
	}

	cash := decimal.NewFromFloat(e.config.StartingCash)
	positions := make(map[string]*position)
	lastClose := make(map[string]decimal.Decimal)
	calculators := make(map[string]*collector.RSICalculator)

	result := Result{StartingCash: e.config.StartingCash}
	peak := cash

	for _, candle := range candles {
		closePrice := decimal.NewFromFloat(candle.Close)
		lastClose[candle.Symbol] = closePrice

		calc, ok := calculators[candle.Symbol]
		if !ok {
			var err error

			calc, err = collector.NewRSICalculator(e.config.RSIPeriod)
			if err != nil {
				return Result{}, err
			}

			calculators[candle.Symbol] = calc
		}

		snapshot := types.MarketSnapshot{
			Price: &types.PricePoint{
				Symbol:    candle.Symbol,
				Price:     candle.Close,
				Timestamp: candle.Timestamp,
			},
		}

		if value, ready := calc.Update(candle.Close); ready {
			snapshot.RSI = &types.RSIPoint{
				Symbol:    candle.Symbol,
				Value:     value,
				Timestamp: candle.Timestamp,
			}
		}

		signal, err := e.strategy.ProcessData(candle.Symbol, snapshot)
		if err != nil {
			e.log.Warn("Strategy error during replay",
				zap.String("symbol", candle.Symbol),
				zap.Error(err))

			continue
		}

		if signal == nil || !signal.Decision.IsActionable() {
			continue
		}

		cash = e.fill(&result, positions, lastClose, cash, candle, signal.Decision, closePrice)

		// Drawdown on the mark-to-market equity after each fill.
		equity := markToMarket(cash, positions, lastClose)
		if equity.GreaterThan(peak) {
			peak = equity
		} else if peak.IsPositive() {
			drawdown, _ := peak.Sub(equity).Div(peak).Float64()
			if drawdown > result.MaxDrawdown {
				result.MaxDrawdown = drawdown
			}
		}
	}

	final := markToMarket(cash, positions, lastClose)
	result.FinalEquity, _ = final.Float64()
	result.Return, _ = final.Sub(decimal.NewFromFloat(e.config.StartingCash)).
		Div(decimal.NewFromFloat(e.config.StartingCash)).Float64()

	return result, nil
}

func (e *EngineV1) fill(result *Result, positions map[string]*position, lastClose map[string]decimal.Decimal,
	cash decimal.Decimal, candle types.Candle, side types.Decision, closePrice decimal.Decimal) decimal.Decimal {
	fillPrice := e.slip(closePrice, side)

	equity := markToMarket(cash, positions, lastClose)

	quantity := e.size(equity, fillPrice)
	if !quantity.IsPositive() {
		return cash
	}

	pos, ok := positions[candle.Symbol]
	if !ok {
		pos = &position{}
		positions[candle.Symbol] = pos
	}

	switch side {
	case types.DecisionBuy:
		quantityF, _ := quantity.Float64()
		priceF, _ := fillPrice.Float64()
		fee := decimal.NewFromFloat(e.config.Commission.Calculate(quantityF, priceF))

		cost := quantity.Mul(fillPrice).Add(fee)
		if cost.GreaterThan(cash) {
			return cash
		}

		newQuantity := pos.quantity.Add(quantity)
		pos.avgEntry = pos.quantity.Mul(pos.avgEntry).Add(quantity.Mul(fillPrice)).Div(newQuantity)
		pos.quantity = newQuantity
		cash = cash.Sub(cost)

		feeF, _ := fee.Float64()
		result.Trades = append(result.Trades, Trade{
			Symbol:     candle.Symbol,
			Side:       side,
			Quantity:   quantityF,
			Price:      priceF,
			Commission: feeF,
			Strategy:   e.strategy.ID(),
			Timestamp:  candle.Timestamp,
		})
	case types.DecisionSell:
		if !pos.quantity.IsPositive() {
			return cash
		}

		if quantity.GreaterThan(pos.quantity) {
			quantity = pos.quantity
		}

		quantityF, _ := quantity.Float64()
		priceF, _ := fillPrice.Float64()
		fee := decimal.NewFromFloat(e.config.Commission.Calculate(quantityF, priceF))

		entry := quantity.Mul(pos.avgEntry)
		exit := quantity.Mul(fillPrice).Sub(fee)
		pnl := exit.Sub(entry)

		pos.quantity = pos.quantity.Sub(quantity)
		cash = cash.Add(exit)

		pnlF, _ := pnl.Float64()
		feeF, _ := fee.Float64()

		if pnlF > 0 {
			result.Wins++
		} else {
			result.Losses++
		}

		result.Trades = append(result.Trades, Trade{
			Symbol:     candle.Symbol,
			Side:       side,
			Quantity:   quantityF,
			Price:      priceF,
			Commission: feeF,
			PnL:        pnlF,
			Strategy:   e.strategy.ID(),
			Timestamp:  candle.Timestamp,
		})
	}

	return cash
}

// slip moves the fill price against the order.
func (e *EngineV1) slip(price decimal.Decimal, side types.Decision) decimal.Decimal {
	if e.config.SlippageBps == 0 {
		return price
	}

	offset := price.Mul(decimal.NewFromFloat(e.config.SlippageBps)).Div(decimal.NewFromInt(10000))

	if side == types.DecisionBuy {
		return price.Add(offset)
	}

	return price.Sub(offset)
}

// size converts the sizing config into a quantity at the fill price.
func (e *EngineV1) size(equity, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}

	var notional decimal.Decimal

	switch e.config.Sizing.Mode {
	case types.SizingModeFixed:
		notional = decimal.NewFromFloat(e.config.Sizing.FixedAmount.Unwrap())
	case types.SizingModePercentage:
		notional = equity.Mul(decimal.NewFromFloat(e.config.Sizing.Percentage.Unwrap())).
			Div(decimal.NewFromInt(100))
	default:
		return decimal.Zero
	}

	if notional.LessThan(decimal.NewFromFloat(e.config.Sizing.MinOrderNotional)) {
		return decimal.Zero
	}

	return notional.Div(price)
}

func markToMarket(cash decimal.Decimal, positions map[string]*position, lastClose map[string]decimal.Decimal) decimal.Decimal {
	equity := cash

	for symbol, pos := range positions {
		if price, ok := lastClose[symbol]; ok {
			equity = equity.Add(pos.quantity.Mul(price))
		}
	}

	return equity
}
