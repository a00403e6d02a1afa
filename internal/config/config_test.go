package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	os.Unsetenv(EnvRedisAddr)
	os.Unsetenv(EnvBinanceAPIKey)
	os.Unsetenv(EnvBinanceSecretKey)
	os.Unsetenv(EnvPolygonAPIKey)
}

func (suite *ConfigTestSuite) writeFile(content string) string {
	path := filepath.Join(suite.dir, "config.yaml")
	suite.NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (suite *ConfigTestSuite) TestDefaultsWithoutFile() {
	config, err := Load("")
	suite.Error(err)
	// Defaults alone fail validation: no symbols are configured.
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
	suite.Empty(config.Symbols)
}

func (suite *ConfigTestSuite) TestLoadMinimalFile() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
  - ETH/USD
`)

	config, err := Load(path)
	suite.NoError(err)
	suite.Equal([]string{"BTC/USD", "ETH/USD"}, config.Symbols)
	suite.Equal("localhost:6379", config.Store.RedisAddr)
	suite.Equal(60*time.Second, config.Manager.PollInterval)
	suite.Equal("paper", config.Broker.Kind)
	suite.Equal(":8080", config.API.ListenAddr)
	suite.Equal("info", config.LogLevel)
}

func (suite *ConfigTestSuite) TestLogLevelFromFile() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
log_level: debug
`)

	config, err := Load(path)
	suite.NoError(err)
	suite.Equal("debug", config.LogLevel)
}

func (suite *ConfigTestSuite) TestInvalidLogLevelRejected() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
log_level: loud
`)

	_, err := Load(path)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestFileOverridesDefaults() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
store:
  redis_addr: redis.internal:6379
manager:
  poll_interval: 30s
  tie_break: registration_order
broker:
  kind: binance
  quote_currency: USDC
`)

	config, err := Load(path)
	suite.NoError(err)
	suite.Equal("redis.internal:6379", config.Store.RedisAddr)
	suite.Equal(30*time.Second, config.Manager.PollInterval)
	suite.Equal("registration_order", config.Manager.TieBreak)
	suite.Equal("binance", config.Broker.Kind)
	suite.Equal("USDC", config.Broker.QuoteCurrency)
}

func (suite *ConfigTestSuite) TestEnvironmentWinsOverFile() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
store:
  redis_addr: from-file:6379
broker:
  api_key: file-key
`)

	suite.T().Setenv(EnvRedisAddr, "from-env:6379")
	suite.T().Setenv(EnvBinanceAPIKey, "env-key")
	suite.T().Setenv(EnvPolygonAPIKey, "poly-key")

	config, err := Load(path)
	suite.NoError(err)
	suite.Equal("from-env:6379", config.Store.RedisAddr)
	suite.Equal("env-key", config.Broker.APIKey)
	suite.Equal("poly-key", config.Collector.PolygonAPIKey)
}

func (suite *ConfigTestSuite) TestInvalidBrokerKindRejected() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
broker:
  kind: robinhood
`)

	_, err := Load(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestInvalidTieBreakRejected() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
manager:
  tie_break: coin_flip
`)

	_, err := Load(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestInvalidSizingRejected() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
executor:
  sizing:
    mode: percentage
`)

	_, err := Load(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidSizing))
}

func (suite *ConfigTestSuite) TestSizingParsed() {
	path := suite.writeFile(`
symbols:
  - BTC/USD
executor:
  sizing:
    mode: fixed
    fixed_amount: 250
    min_order_notional: 10
`)

	config, err := Load(path)
	suite.NoError(err)
	suite.Equal(types.SizingModeFixed, config.Executor.Sizing.Mode)
	suite.InDelta(250, config.Executor.Sizing.FixedAmount.Unwrap(), 0.0001)
}

func (suite *ConfigTestSuite) TestMissingFileFails() {
	path := filepath.Join(suite.dir, "missing.yaml")

	_, err := Load(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestMalformedYAMLFails() {
	path := suite.writeFile("symbols: [unclosed")

	_, err := Load(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}
