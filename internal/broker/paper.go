package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// PaperBroker is an in-memory venue simulation. Orders fill instantly at
// the configured price. It backs paper-trading deployments and tests.
type PaperBroker struct {
	mu            sync.Mutex
	cash          float64
	positions     map[string]float64
	prices        map[string]float64
	dayTrades     int
	failNextOrder error
}

// NewPaperBroker creates a paper broker with the given starting cash.
func NewPaperBroker(startingCash float64) *PaperBroker {
	return &PaperBroker{
		cash:      startingCash,
		positions: make(map[string]float64),
		prices:    make(map[string]float64),
	}
}

// SetPrice sets the simulated price for a symbol.
func (p *PaperBroker) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetPosition seeds an open position.
func (p *PaperBroker) SetPosition(symbol string, quantity float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[symbol] = quantity
}

// SetDayTradeCount sets the simulated day-trade counter.
func (p *PaperBroker) SetDayTradeCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dayTrades = count
}

// FailNextOrder makes the next PlaceMarketOrder call return err.
func (p *PaperBroker) FailNextOrder(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNextOrder = err
}

// GetAccount implements Broker.
func (p *PaperBroker) GetAccount(ctx context.Context) (types.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	portfolioValue := p.cash
	for symbol, quantity := range p.positions {
		portfolioValue += quantity * p.prices[symbol]
	}

	return types.AccountInfo{
		Cash:           p.cash,
		PortfolioValue: portfolioValue,
		Equity:         portfolioValue,
		BuyingPower:    p.cash,
		PaperTrading:   true,
	}, nil
}

// GetPositions implements Broker.
func (p *PaperBroker) GetPositions(ctx context.Context) ([]types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make([]types.Position, 0, len(p.positions))

	for symbol, quantity := range p.positions {
		if quantity <= 0 {
			continue
		}

		price := p.prices[symbol]
		positions = append(positions, types.Position{
			Symbol:       symbol,
			Quantity:     quantity,
			MarketValue:  quantity * price,
			CurrentPrice: price,
		})
	}

	return positions, nil
}

// CurrentPrice implements Broker.
func (p *PaperBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return 0, errors.Newf(errors.ErrCodePriceUnavailable, "no price for %s", symbol)
	}

	return price, nil
}

// PlaceMarketOrder implements Broker. Fills at the configured price.
func (p *PaperBroker) PlaceMarketOrder(ctx context.Context, symbol string, side types.Decision, quantity float64) (OrderConfirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNextOrder != nil {
		err := p.failNextOrder
		p.failNextOrder = nil

		return OrderConfirmation{}, err
	}

	if quantity <= 0 {
		return OrderConfirmation{}, errors.New(errors.ErrCodeInvalidParameter, "order quantity must be greater than zero")
	}

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return OrderConfirmation{}, errors.Newf(errors.ErrCodePriceUnavailable, "no price for %s", symbol)
	}

	notional := quantity * price

	switch side {
	case types.DecisionBuy:
		if notional > p.cash {
			return OrderConfirmation{}, errors.Newf(errors.ErrCodeOrderFailed,
				"insufficient cash: need %.2f, have %.2f", notional, p.cash)
		}

		p.cash -= notional
		p.positions[symbol] += quantity
	case types.DecisionSell:
		if p.positions[symbol] < quantity {
			return OrderConfirmation{}, errors.Newf(errors.ErrCodeOrderFailed,
				"insufficient quantity: need %v, have %v", quantity, p.positions[symbol])
		}

		p.cash += notional
		p.positions[symbol] -= quantity
	default:
		return OrderConfirmation{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", side)
	}

	return OrderConfirmation{
		OrderID:  uuid.NewString(),
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
	}, nil
}

// ClosePosition implements Broker.
func (p *PaperBroker) ClosePosition(ctx context.Context, symbol string) (types.PositionCloseResult, error) {
	p.mu.Lock()
	quantity := p.positions[symbol]
	p.mu.Unlock()

	if quantity <= 0 {
		err := errors.Newf(errors.ErrCodePositionNotFound, "no open position for %s", symbol)

		return types.PositionCloseResult{Symbol: symbol, Closed: false, Error: err.Error()}, err
	}

	if _, err := p.PlaceMarketOrder(ctx, symbol, types.DecisionSell, quantity); err != nil {
		return types.PositionCloseResult{Symbol: symbol, Closed: false, Error: err.Error()}, err
	}

	return types.PositionCloseResult{Symbol: symbol, Closed: true}, nil
}

// DayTradeCount implements Broker.
func (p *PaperBroker) DayTradeCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.dayTrades, nil
}

// Verify PaperBroker implements the Broker interface.
var _ Broker = (*PaperBroker)(nil)
