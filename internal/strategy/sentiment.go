package strategy

import (
	"strings"
	"time"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

const (
	defaultBullishThreshold = 65.0
	defaultBearishThreshold = 35.0
	defaultMinArticleCount  = 3
)

// SentimentStrategy generates signals from aggregated news sentiment.
// It only applies to equities; news coverage keyed to crypto pairs is too
// thin to aggregate reliably, so pairs produce no verdict.
type SentimentStrategy struct {
	bullishThreshold float64
	bearishThreshold float64
	minArticles      int
}

// NewSentimentStrategy creates a sentiment strategy with default thresholds.
func NewSentimentStrategy() *SentimentStrategy {
	return &SentimentStrategy{
		bullishThreshold: defaultBullishThreshold,
		bearishThreshold: defaultBearishThreshold,
		minArticles:      defaultMinArticleCount,
	}
}

// Configure replaces the thresholds and minimum article count.
func (s *SentimentStrategy) Configure(bullish, bearish float64, minArticles int) error {
	if bearish <= 0 || bullish >= 100 || bearish >= bullish || minArticles < 1 {
		return errors.Newf(errors.ErrCodeStrategyConfigError,
			"invalid sentiment config: bullish=%.1f bearish=%.1f min_articles=%d",
			bullish, bearish, minArticles)
	}

	s.bullishThreshold = bullish
	s.bearishThreshold = bearish
	s.minArticles = minArticles

	return nil
}

// ID implements Strategy.
func (s *SentimentStrategy) ID() string {
	return "news_sentiment"
}

// Name implements Strategy.
func (s *SentimentStrategy) Name() string {
	return "News Sentiment Strategy"
}

// Description implements Strategy.
func (s *SentimentStrategy) Description() string {
	return "Generates signals from aggregated news sentiment for equities"
}

// RequiredDataKeys implements Strategy.
func (s *SentimentStrategy) RequiredDataKeys() []string {
	return []string{types.DataKeySentiment}
}

// ProcessData implements Strategy.
func (s *SentimentStrategy) ProcessData(symbol string, data types.MarketSnapshot) (*types.Signal, error) {
	if strings.Contains(symbol, "/") {
		return nil, nil
	}

	if data.Sentiment == nil {
		return nil, errors.Newf(errors.ErrCodeMarketDataMissing, "no sentiment data for %s", symbol)
	}

	point := data.Sentiment
	if point.ArticleCount < s.minArticles {
		return nil, nil
	}

	var (
		decision   types.Decision
		confidence float64
	)

	switch {
	case point.Score > s.bullishThreshold:
		decision = types.DecisionBuy
		confidence = 0.5 + 0.5*((point.Score-s.bullishThreshold)/(100-s.bullishThreshold))
	case point.Score < s.bearishThreshold:
		decision = types.DecisionSell
		confidence = 0.5 + 0.5*((s.bearishThreshold-point.Score)/s.bearishThreshold)
	default:
		return nil, nil
	}

	return &types.Signal{
		Symbol:     symbol,
		Decision:   decision,
		Confidence: min(confidence, 0.95),
		Strategy:   s.ID(),
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Verify SentimentStrategy implements the Strategy interface.
var _ Strategy = (*SentimentStrategy)(nil)
