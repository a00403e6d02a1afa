package types

import "time"

// Data keys a strategy can declare as required. The collector writes one
// store key per data key per symbol.
const (
	DataKeyPrice     = "price"
	DataKeyRSI       = "rsi"
	DataKeySentiment = "sentiment"
)

// PricePoint is the latest observed price for a symbol.
type PricePoint struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Price     float64   `json:"price" yaml:"price"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// RSIPoint is the latest RSI reading for a symbol.
type RSIPoint struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Value     float64   `json:"value" yaml:"value"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// SentimentPoint is an aggregated news-sentiment score for a symbol on a
// 0-100 scale (50 = neutral).
type SentimentPoint struct {
	Symbol       string    `json:"symbol" yaml:"symbol"`
	Score        float64   `json:"score" yaml:"score"`
	ArticleCount int       `json:"article_count" yaml:"article_count"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

// MarketSnapshot is the per-symbol data handed to a strategy on one poll
// tick. Fields are nil when the collector has not produced them.
type MarketSnapshot struct {
	Price     *PricePoint     `json:"price,omitempty" yaml:"price,omitempty"`
	RSI       *RSIPoint       `json:"rsi,omitempty" yaml:"rsi,omitempty"`
	Sentiment *SentimentPoint `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
}

// Has reports whether the snapshot satisfies the given data key.
func (s MarketSnapshot) Has(key string) bool {
	switch key {
	case DataKeyPrice:
		return s.Price != nil
	case DataKeyRSI:
		return s.RSI != nil
	case DataKeySentiment:
		return s.Sentiment != nil
	}

	return false
}

// Candle is one OHLCV bar, used by the collector and the backtest engine.
type Candle struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Open      float64   `json:"open" yaml:"open"`
	High      float64   `json:"high" yaml:"high"`
	Low       float64   `json:"low" yaml:"low"`
	Close     float64   `json:"close" yaml:"close"`
	Volume    float64   `json:"volume" yaml:"volume"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
