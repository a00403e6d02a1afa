package broker

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/symbols"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

const (
	// binanceDecimalPrecision allows satoshi-level quantities. Symbol
	// specific LOT_SIZE filters would be tighter but this is the safe floor.
	binanceDecimalPrecision = 8

	binanceCallTimeout = 10 * time.Second
)

// Service interfaces for mocking the Binance API.

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// ListPricesService interface for fetching latest prices.
type ListPricesService interface {
	Symbol(symbol string) ListPricesService
	Do(ctx context.Context) ([]*binance.SymbolPrice, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewListPricesService() ListPricesService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realBinanceClient) NewListPricesService() ListPricesService {
	return &realListPricesService{service: r.client.NewListPricesService()}
}

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

type realListPricesService struct {
	service *binance.ListPricesService
}

func (s *realListPricesService) Symbol(symbol string) ListPricesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListPricesService) Do(ctx context.Context) ([]*binance.SymbolPrice, error) {
	return s.service.Do(ctx)
}

// BinanceBrokerConfig configures the Binance adapter.
type BinanceBrokerConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	// QuoteCurrency is the quote asset orders settle in on the venue.
	// Canonical USD-quoted pairs trade against this asset.
	QuoteCurrency string `json:"quote_currency" yaml:"quote_currency"`
	UseTestnet    bool   `json:"use_testnet" yaml:"use_testnet"`
	BaseURL       string `json:"base_url" yaml:"base_url"`
}

// BinanceBroker implements Broker against the Binance spot API. It is
// stateless; every call fetches fresh data from the venue.
type BinanceBroker struct {
	client        BinanceClient
	resolver      symbols.Resolver
	quoteCurrency string
	callTimeout   time.Duration
	log           *logger.Logger
}

// NewBinanceBroker creates a Binance adapter. If config.BaseURL is set it
// takes precedence over UseTestnet.
func NewBinanceBroker(config BinanceBrokerConfig, resolver symbols.Resolver, log *logger.Logger) *BinanceBroker {
	if config.UseTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	quote := config.QuoteCurrency
	if quote == "" {
		quote = "USDT"
	}

	return &BinanceBroker{
		client:        &realBinanceClient{client: client},
		resolver:      resolver,
		quoteCurrency: quote,
		callTimeout:   binanceCallTimeout,
		log:           log,
	}
}

// newBinanceBrokerWithClient creates a Binance adapter with a custom
// client. This is used for testing with mock clients.
func newBinanceBrokerWithClient(client BinanceClient, resolver symbols.Resolver, log *logger.Logger) *BinanceBroker {
	return &BinanceBroker{
		client:        client,
		resolver:      resolver,
		quoteCurrency: "USDT",
		callTimeout:   binanceCallTimeout,
		log:           log,
	}
}

func (b *BinanceBroker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.callTimeout)
}

// venueSymbol maps a canonical symbol to the venue's concatenated form,
// e.g. BTC/USD -> BTCUSDT when the quote currency is USDT.
func (b *BinanceBroker) venueSymbol(canonical string) string {
	base, quote, found := strings.Cut(canonical, "/")
	if !found {
		return canonical
	}

	if quote == "USD" {
		quote = b.quoteCurrency
	}

	return base + quote
}

// GetAccount implements Broker.
func (b *BinanceBroker) GetAccount(ctx context.Context) (types.AccountInfo, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return types.AccountInfo{}, errors.Wrap(errors.ErrCodeAccountUnavailable, "failed to get account from venue", err)
	}

	var cash, free float64

	for _, balance := range account.Balances {
		if balance.Asset != b.quoteCurrency {
			continue
		}

		f, _ := strconv.ParseFloat(balance.Free, 64)
		l, _ := strconv.ParseFloat(balance.Locked, 64)
		cash += f + l
		free += f
	}

	positions, err := b.positionsFromBalances(ctx, account)
	if err != nil {
		return types.AccountInfo{}, err
	}

	portfolioValue := cash
	for _, position := range positions {
		portfolioValue += position.MarketValue
	}

	return types.AccountInfo{
		Cash:           cash,
		PortfolioValue: portfolioValue,
		Equity:         portfolioValue,
		BuyingPower:    free,
		PaperTrading:   false,
	}, nil
}

// GetPositions implements Broker. Spot balances in non-quote assets are
// reported as long positions reconciled to canonical symbols.
func (b *BinanceBroker) GetPositions(ctx context.Context) ([]types.Position, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAccountUnavailable, "failed to get account from venue", err)
	}

	return b.positionsFromBalances(ctx, account)
}

func (b *BinanceBroker) positionsFromBalances(ctx context.Context, account *binance.Account) ([]types.Position, error) {
	positions := make([]types.Position, 0)

	for _, balance := range account.Balances {
		if balance.Asset == b.quoteCurrency {
			continue
		}

		f, _ := strconv.ParseFloat(balance.Free, 64)
		l, _ := strconv.ParseFloat(balance.Locked, 64)

		total := f + l
		if total <= 0 {
			continue
		}

		canonical := b.resolver.Canonicalize(balance.Asset + "/" + b.quoteCurrency)

		price, err := b.priceForVenueSymbol(ctx, balance.Asset+b.quoteCurrency)
		if err != nil {
			b.log.Warn("No price for held asset, skipping position",
				zap.String("asset", balance.Asset), zap.Error(err))

			continue
		}

		positions = append(positions, types.Position{
			Symbol:       canonical,
			Quantity:     total,
			MarketValue:  total * price,
			UnrealizedPL: 0,
			CurrentPrice: price,
		})
	}

	return positions, nil
}

// CurrentPrice implements Broker.
func (b *BinanceBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	return b.priceForVenueSymbol(ctx, b.venueSymbol(symbol))
}

func (b *BinanceBroker) priceForVenueSymbol(ctx context.Context, venueSymbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(venueSymbol).Do(ctx)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodePriceUnavailable, err, "failed to get price for %s", venueSymbol)
	}

	if len(prices) == 0 {
		return 0, errors.Newf(errors.ErrCodePriceUnavailable, "no price returned for %s", venueSymbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodePriceUnavailable, err, "invalid price for %s", venueSymbol)
	}

	return price, nil
}

// PlaceMarketOrder implements Broker.
func (b *BinanceBroker) PlaceMarketOrder(ctx context.Context, symbol string, side types.Decision, quantity float64) (OrderConfirmation, error) {
	var binanceSide binance.SideType

	switch side {
	case types.DecisionBuy:
		binanceSide = binance.SideTypeBuy
	case types.DecisionSell:
		binanceSide = binance.SideTypeSell
	default:
		return OrderConfirmation{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", side)
	}

	if quantity <= 0 {
		return OrderConfirmation{}, errors.New(errors.ErrCodeInvalidParameter, "order quantity must be greater than zero")
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	response, err := b.client.NewCreateOrderService().
		Symbol(b.venueSymbol(symbol)).
		Side(binanceSide).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', binanceDecimalPrecision, 64)).
		Do(ctx)
	if err != nil {
		return OrderConfirmation{}, errors.Wrap(errors.ErrCodeOrderFailed, "failed to place order on venue", err)
	}

	confirmation := OrderConfirmation{
		OrderID:  strconv.FormatInt(response.OrderID, 10),
		Symbol:   symbol,
		Quantity: quantity,
	}

	if executed, parseErr := strconv.ParseFloat(response.ExecutedQuantity, 64); parseErr == nil && executed > 0 {
		confirmation.Quantity = executed
	}

	if len(response.Fills) > 0 {
		if price, parseErr := strconv.ParseFloat(response.Fills[0].Price, 64); parseErr == nil {
			confirmation.Price = price
		}
	}

	return confirmation, nil
}

// ClosePosition implements Broker.
func (b *BinanceBroker) ClosePosition(ctx context.Context, symbol string) (types.PositionCloseResult, error) {
	positions, err := b.GetPositions(ctx)
	if err != nil {
		return types.PositionCloseResult{Symbol: symbol, Closed: false, Error: err.Error()}, err
	}

	canonical := b.resolver.Canonicalize(symbol)

	for _, position := range positions {
		if position.Symbol != canonical {
			continue
		}

		if _, err := b.PlaceMarketOrder(ctx, canonical, types.DecisionSell, position.Quantity); err != nil {
			return types.PositionCloseResult{Symbol: canonical, Closed: false, Error: err.Error()}, err
		}

		return types.PositionCloseResult{Symbol: canonical, Closed: true}, nil
	}

	err = errors.Newf(errors.ErrCodePositionNotFound, "no open position for %s", canonical)

	return types.PositionCloseResult{Symbol: canonical, Closed: false, Error: err.Error()}, err
}

// DayTradeCount implements Broker. PDT is a US equity rule; a crypto spot
// venue has no concept of it.
func (b *BinanceBroker) DayTradeCount(ctx context.Context) (int, error) {
	return 0, nil
}

// Verify BinanceBroker implements the Broker interface.
var _ Broker = (*BinanceBroker)(nil)
