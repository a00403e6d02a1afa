package symbols

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ResolverTestSuite struct {
	suite.Suite
	resolver *ResolverV1
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}

func (suite *ResolverTestSuite) SetupTest() {
	suite.resolver = NewResolver(DefaultResolverConfig())
}

func (suite *ResolverTestSuite) TestCanonicalizeSlashPair() {
	suite.Equal("BTC/USD", suite.resolver.Canonicalize("BTC/USD"))
}

func (suite *ResolverTestSuite) TestCanonicalizeAppliesQuoteAlias() {
	suite.Equal("BTC/USD", suite.resolver.Canonicalize("BTC/USDT"))
	suite.Equal("ETH/USD", suite.resolver.Canonicalize("ETHUSDT"))
}

func (suite *ResolverTestSuite) TestCanonicalizeDashPair() {
	suite.Equal("BTC/USD", suite.resolver.Canonicalize("BTC-USD"))
}

func (suite *ResolverTestSuite) TestCanonicalizeConcatenatedPair() {
	suite.Equal("BTC/USD", suite.resolver.Canonicalize("BTCUSD"))
	suite.Equal("DOGE/USD", suite.resolver.Canonicalize("DOGEUSD"))
}

func (suite *ResolverTestSuite) TestCanonicalizeLowercaseInput() {
	suite.Equal("BTC/USD", suite.resolver.Canonicalize("btc/usd"))
}

func (suite *ResolverTestSuite) TestCanonicalizeEquityTickerStaysWhole() {
	suite.Equal("AAPL", suite.resolver.Canonicalize("AAPL"))
	suite.Equal("MSFT", suite.resolver.Canonicalize("MSFT"))
	suite.Equal("SPY", suite.resolver.Canonicalize("spy"))
}

func (suite *ResolverTestSuite) TestCanonicalizeBareQuoteCurrencyStaysWhole() {
	suite.Equal("USDT", suite.resolver.Canonicalize("USDT"))
}

func (suite *ResolverTestSuite) TestCandidatesStartWithCanonicalForm() {
	candidates := suite.resolver.Candidates("BTC/USD")
	suite.Equal("BTC/USD", candidates[0])
	suite.Contains(candidates, "BTCUSD")
	suite.Contains(candidates, "BTC-USD")
	suite.Contains(candidates, "BTC/USDT")
	suite.Contains(candidates, "BTCUSDT")
}

func (suite *ResolverTestSuite) TestCandidatesForEquity() {
	suite.Equal([]string{"AAPL"}, suite.resolver.Candidates("AAPL"))
}

func (suite *ResolverTestSuite) TestRoundTripIdempotence() {
	rawForms := []string{
		"BTC/USD", "BTC/USDT", "BTC-USD", "BTCUSD", "BTCUSDT",
		"eth/usdt", "DOGE-USD", "AAPL", "MSFT", "SPY",
	}

	for _, raw := range rawForms {
		canonical := suite.resolver.Canonicalize(raw)
		candidates := suite.resolver.Candidates(canonical)
		suite.Require().NotEmpty(candidates, raw)
		suite.Equal(canonical, suite.resolver.Canonicalize(candidates[0]), raw)
	}
}

func (suite *ResolverTestSuite) TestIsPair() {
	suite.True(suite.resolver.IsPair("BTC/USD"))
	suite.True(suite.resolver.IsPair("ETHUSDT"))
	suite.False(suite.resolver.IsPair("AAPL"))
}

func (suite *ResolverTestSuite) TestCandidatesOrderStableAcrossAliases() {
	resolver := NewResolver(ResolverConfig{QuoteAliases: map[string]string{
		"USDT": "USD",
		"USDC": "USD",
	}})

	expected := []string{
		"BTC/USD", "BTCUSD", "BTC-USD",
		"BTC/USDC", "BTCUSDC", "BTC-USDC",
		"BTC/USDT", "BTCUSDT", "BTC-USDT",
	}

	// Map iteration order must not leak into the candidate list.
	for i := 0; i < 20; i++ {
		suite.Equal(expected, resolver.Candidates("BTC/USD"))
	}
}

func (suite *ResolverTestSuite) TestNoAliasConfigured() {
	resolver := NewResolver(ResolverConfig{})

	suite.Equal("BTC/USDT", resolver.Canonicalize("BTC/USDT"))

	candidates := resolver.Candidates("BTC/USD")
	suite.NotContains(candidates, "BTC/USDT")
}
