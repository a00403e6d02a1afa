// Package collector fetches market data from Polygon and publishes the
// per-symbol price and RSI snapshots the strategies consume.
package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/symbols"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

const (
	// DefaultFetchInterval is the collector poll cadence.
	DefaultFetchInterval = 60 * time.Second
	// priceTTL bounds how long a price point may serve strategies. A dead
	// collector must not leave fresh-looking prices behind.
	priceTTL = 5 * time.Minute
	// rsiTTL is longer than priceTTL because the indicator moves slower
	// than the spot price.
	rsiTTL = 15 * time.Minute
	// sentimentTTL keeps a news score alive across several fetch cycles;
	// articles do not arrive every minute.
	sentimentTTL = 30 * time.Minute
	// newsLookback is the publication window aggregated into one score.
	newsLookback = 24 * time.Hour

	maxNewsArticles = 50

	stopWait = 5 * time.Second
)

// AggsIterator is the subset of the Polygon aggregates iterator the
// collector consumes.
type AggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// NewsIterator is the subset of the Polygon ticker-news iterator the
// collector consumes.
type NewsIterator interface {
	Next() bool
	Item() models.TickerNews
	Err() error
}

// MarketDataClient is the slice of the Polygon REST client the collector
// uses. Wrapped for mockability.
type MarketDataClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams) AggsIterator
	ListTickerNews(ctx context.Context, params *models.ListTickerNewsParams) NewsIterator
}

type realPolygonClient struct {
	client *polygon.Client
}

func (c *realPolygonClient) ListAggs(ctx context.Context, params *models.ListAggsParams) AggsIterator {
	return c.client.ListAggs(ctx, params)
}

func (c *realPolygonClient) ListTickerNews(ctx context.Context, params *models.ListTickerNewsParams) NewsIterator {
	return c.client.ListTickerNews(ctx, params)
}

// NewPolygonClient creates a MarketDataClient backed by the Polygon REST API.
func NewPolygonClient(apiKey string) (MarketDataClient, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon api key is required")
	}

	return &realPolygonClient{client: polygon.New(apiKey)}, nil
}

// Config controls the collector.
type Config struct {
	// Symbols is the set of canonical instruments to collect.
	Symbols []string `json:"symbols" yaml:"symbols" validate:"required,min=1"`
	// FetchInterval overrides DefaultFetchInterval when positive.
	FetchInterval time.Duration `json:"fetch_interval" yaml:"fetch_interval"`
	// RSIPeriod overrides DefaultRSIPeriod when positive.
	RSIPeriod int `json:"rsi_period" yaml:"rsi_period"`
}

// Collector owns the market data fetch loop.
type Collector interface {
	// Start launches the fetch loop. Returns ErrCodeAlreadyRunning if the
	// loop is active.
	Start() error
	// Stop cancels the fetch loop and waits, bounded, for it to exit.
	Stop() error
	// IsRunning reports whether the fetch loop is active.
	IsRunning() bool
	// CollectOnce runs a single fetch pass over all symbols.
	CollectOnce(ctx context.Context)
}

// CollectorV1 implements Collector.
type CollectorV1 struct {
	store    store.Store
	client   MarketDataClient
	resolver symbols.Resolver
	config   Config
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// calculators and lastBar are touched only by the fetch loop.
	calculators map[string]*RSICalculator
	lastBar     map[string]time.Time

	now func() time.Time
}

// NewCollector creates a collector over the configured symbols.
func NewCollector(s store.Store, client MarketDataClient, resolver symbols.Resolver, config Config, log *logger.Logger) *CollectorV1 {
	if config.FetchInterval <= 0 {
		config.FetchInterval = DefaultFetchInterval
	}

	if config.RSIPeriod <= 0 {
		config.RSIPeriod = DefaultRSIPeriod
	}

	return &CollectorV1{
		store:       s,
		client:      client,
		resolver:    resolver,
		config:      config,
		log:         log,
		calculators: make(map[string]*RSICalculator),
		lastBar:     make(map[string]time.Time),
		now:         time.Now,
	}
}

// Start implements Collector.
func (c *CollectorV1) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New(errors.ErrCodeAlreadyRunning, "collector is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	done := c.done

	c.log.Info("Collector starting",
		zap.Strings("symbols", c.config.Symbols),
		zap.Duration("interval", c.config.FetchInterval))

	go func() {
		defer close(done)
		c.run(ctx)
	}()

	return nil
}

// Stop implements Collector.
func (c *CollectorV1) Stop() error {
	c.mu.Lock()

	if !c.running {
		c.mu.Unlock()

		return errors.New(errors.ErrCodeNotRunning, "collector is not running")
	}

	cancel := c.cancel
	done := c.done
	c.running = false
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(stopWait):
		c.log.Warn("Collector loop did not exit in time")
	}

	return nil
}

// IsRunning implements Collector.
func (c *CollectorV1) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

func (c *CollectorV1) run(ctx context.Context) {
	ticker := time.NewTicker(c.config.FetchInterval)
	defer ticker.Stop()

	c.CollectOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce(ctx)
		}
	}
}

// CollectOnce implements Collector. A failure on one symbol never blocks
// the others.
func (c *CollectorV1) CollectOnce(ctx context.Context) {
	for _, symbol := range c.config.Symbols {
		if err := c.collectSymbol(ctx, symbol); err != nil {
			c.log.Error("Failed to collect market data",
				zap.String("symbol", symbol),
				zap.Error(err))
		}

		// News insights are tagged with equity tickers. Pairs are skipped
		// here and by the sentiment strategy alike.
		if c.resolver.IsPair(symbol) {
			continue
		}

		if err := c.collectSentiment(ctx, symbol); err != nil {
			c.log.Error("Failed to collect news sentiment",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
}

func (c *CollectorV1) collectSymbol(ctx context.Context, symbol string) error {
	calc, ok := c.calculators[symbol]
	if !ok {
		var err error

		calc, err = NewRSICalculator(c.config.RSIPeriod)
		if err != nil {
			return err
		}

		c.calculators[symbol] = calc
	}

	now := c.now()

	// First fetch backfills enough one-minute bars to seed the RSI.
	// Later fetches pick up from the last seen bar.
	from := c.lastBar[symbol]
	if from.IsZero() {
		from = now.Add(-time.Duration(c.config.RSIPeriod*3) * time.Minute)
	}

	params := models.ListAggsParams{
		Ticker:     c.venueTicker(symbol),
		Multiplier: 1,
		Timespan:   models.Minute,
		From:       models.Millis(from),
		To:         models.Millis(now),
	}.WithLimit(50000).WithOrder(models.Asc)

	iter := c.client.ListAggs(ctx, params)

	var (
		last      types.Candle
		processed int
	)

	for iter.Next() {
		agg := iter.Item()
		barTime := time.Time(agg.Timestamp)

		if !barTime.After(c.lastBar[symbol]) {
			continue
		}

		last = types.Candle{
			Symbol:    symbol,
			Open:      agg.Open,
			High:      agg.High,
			Low:       agg.Low,
			Close:     agg.Close,
			Volume:    agg.Volume,
			Timestamp: barTime,
		}

		if value, ready := calc.Update(agg.Close); ready {
			point := types.RSIPoint{Symbol: symbol, Value: value, Timestamp: barTime}
			if err := c.store.SetJSON(ctx, store.KeyRSI(symbol), point, rsiTTL); err != nil {
				return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to write rsi point", err)
			}
		}

		c.lastBar[symbol] = barTime
		processed++
	}

	if err := iter.Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch aggregates for %s", symbol)
	}

	if processed == 0 {
		return nil
	}

	point := types.PricePoint{Symbol: symbol, Price: last.Close, Timestamp: last.Timestamp}
	if err := c.store.SetJSON(ctx, store.KeyPrice(symbol), point, priceTTL); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to write price point", err)
	}

	c.log.Debug("Collected market data",
		zap.String("symbol", symbol),
		zap.Int("bars", processed),
		zap.Float64("price", last.Close))

	return nil
}

// collectSentiment aggregates the last day of Polygon news insights for
// one equity into a 0-100 score and publishes it. No matching insights
// means no write; the previous score ages out on its TTL.
func (c *CollectorV1) collectSentiment(ctx context.Context, symbol string) error {
	now := c.now()

	params := models.ListTickerNewsParams{}.
		WithTicker(models.EQ, symbol).
		WithPublishedUTC(models.GTE, models.Millis(now.Add(-newsLookback))).
		WithOrder(models.Desc).
		WithLimit(maxNewsArticles)

	iter := c.client.ListTickerNews(ctx, params)

	var (
		total    float64
		insights int
		articles int
	)

	for iter.Next() {
		article := iter.Item()

		matched := false

		for _, insight := range article.Insights {
			if insight.Ticker != symbol {
				continue
			}

			total += insightScore(insight.Sentiment)
			insights++
			matched = true
		}

		if matched {
			articles++
		}
	}

	if err := iter.Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch news for %s", symbol)
	}

	if insights == 0 {
		return nil
	}

	point := types.SentimentPoint{
		Symbol:       symbol,
		Score:        total / float64(insights),
		ArticleCount: articles,
		Timestamp:    now.UTC(),
	}

	if err := c.store.SetJSON(ctx, store.KeySentiment(symbol), point, sentimentTTL); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to write sentiment point", err)
	}

	c.log.Debug("Collected news sentiment",
		zap.String("symbol", symbol),
		zap.Float64("score", point.Score),
		zap.Int("articles", articles))

	return nil
}

// insightScore maps a Polygon insight label onto the 0-100 scale the
// sentiment strategy consumes. Unknown labels count as neutral.
func insightScore(sentiment string) float64 {
	switch sentiment {
	case "positive":
		return 100
	case "negative":
		return 0
	default:
		return 50
	}
}

// venueTicker maps a canonical symbol to Polygon's ticker form: crypto
// pairs become X:BTCUSD, equities pass through unchanged.
func (c *CollectorV1) venueTicker(symbol string) string {
	if c.resolver.IsPair(symbol) {
		return "X:" + strings.ReplaceAll(symbol, "/", "")
	}

	return symbol
}

// Verify CollectorV1 implements the Collector interface.
var _ Collector = (*CollectorV1)(nil)
