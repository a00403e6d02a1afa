package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

type SentimentStrategyTestSuite struct {
	suite.Suite
	strategy *SentimentStrategy
}

func TestSentimentStrategySuite(t *testing.T) {
	suite.Run(t, new(SentimentStrategyTestSuite))
}

func (suite *SentimentStrategyTestSuite) SetupTest() {
	suite.strategy = NewSentimentStrategy()
}

func (suite *SentimentStrategyTestSuite) snapshot(score float64, articles int) types.MarketSnapshot {
	return types.MarketSnapshot{
		Sentiment: &types.SentimentPoint{
			Symbol:       "AAPL",
			Score:        score,
			ArticleCount: articles,
			Timestamp:    time.Now(),
		},
	}
}

func (suite *SentimentStrategyTestSuite) TestBullishSentimentProducesBuy() {
	signal, err := suite.strategy.ProcessData("AAPL", suite.snapshot(80, 5))
	suite.NoError(err)
	suite.Require().NotNil(signal)
	suite.Equal(types.DecisionBuy, signal.Decision)
	suite.Equal("news_sentiment", signal.Strategy)
	suite.InDelta(0.714, signal.Confidence, 0.001)
}

func (suite *SentimentStrategyTestSuite) TestBearishSentimentProducesSell() {
	signal, err := suite.strategy.ProcessData("AAPL", suite.snapshot(14, 5))
	suite.NoError(err)
	suite.Require().NotNil(signal)
	suite.Equal(types.DecisionSell, signal.Decision)
	suite.InDelta(0.8, signal.Confidence, 0.001)
}

func (suite *SentimentStrategyTestSuite) TestNeutralZoneProducesNoSignal() {
	signal, err := suite.strategy.ProcessData("AAPL", suite.snapshot(50, 5))
	suite.NoError(err)
	suite.Nil(signal)
}

func (suite *SentimentStrategyTestSuite) TestConfidenceIsCapped() {
	signal, err := suite.strategy.ProcessData("AAPL", suite.snapshot(100, 10))
	suite.NoError(err)
	suite.Require().NotNil(signal)
	suite.Equal(0.95, signal.Confidence)
}

func (suite *SentimentStrategyTestSuite) TestInsufficientArticlesProducesNoSignal() {
	signal, err := suite.strategy.ProcessData("AAPL", suite.snapshot(90, 2))
	suite.NoError(err)
	suite.Nil(signal)
}

func (suite *SentimentStrategyTestSuite) TestCryptoPairsAreSkipped() {
	signal, err := suite.strategy.ProcessData("BTC/USD", suite.snapshot(90, 10))
	suite.NoError(err)
	suite.Nil(signal)
}

func (suite *SentimentStrategyTestSuite) TestMissingDataFails() {
	_, err := suite.strategy.ProcessData("AAPL", types.MarketSnapshot{})
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataMissing))
}

func (suite *SentimentStrategyTestSuite) TestConfigure() {
	suite.Error(suite.strategy.Configure(35, 65, 3))
	suite.Error(suite.strategy.Configure(65, 35, 0))
	suite.NoError(suite.strategy.Configure(90, 10, 1))

	// Score 80 is neutral under the new thresholds.
	signal, err := suite.strategy.ProcessData("AAPL", suite.snapshot(80, 1))
	suite.NoError(err)
	suite.Nil(signal)
}
