package liquidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackmesh/tradepilot/internal/broker"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// failingStore wraps a MemoryStore and fails every write once armed.
type failingStore struct {
	*store.MemoryStore
	failWrites bool
}

func (f *failingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failWrites {
		return errors.New(errors.ErrCodeStoreUnavailable, "connection refused")
	}

	return f.MemoryStore.Set(ctx, key, value, ttl)
}

// listingFailBroker wraps a PaperBroker and fails GetPositions.
type listingFailBroker struct {
	*broker.PaperBroker
}

func (b *listingFailBroker) GetPositions(ctx context.Context) ([]types.Position, error) {
	return nil, errors.New(errors.ErrCodeAccountUnavailable, "venue timeout")
}

type SequencerTestSuite struct {
	suite.Suite
	store  *failingStore
	broker *broker.PaperBroker
	seq    *SequencerV1
	ctx    context.Context
}

func TestSequencerSuite(t *testing.T) {
	suite.Run(t, new(SequencerTestSuite))
}

func (suite *SequencerTestSuite) SetupTest() {
	suite.store = &failingStore{MemoryStore: store.NewMemoryStore()}
	suite.broker = broker.NewPaperBroker(10000)
	suite.seq = NewSequencer(suite.store, suite.broker, logger.NewNopLogger())
	suite.ctx = context.Background()
}

func (suite *SequencerTestSuite) flagValue() string {
	value, err := suite.store.Get(suite.ctx, store.KeyTradingEnabled)
	suite.NoError(err)

	return value
}

func (suite *SequencerTestSuite) TestLiquidateAllClosesEveryPosition() {
	suite.broker.SetPrice("BTC/USD", 50000)
	suite.broker.SetPrice("ETH/USD", 3000)
	suite.broker.SetPosition("BTC/USD", 0.5)
	suite.broker.SetPosition("ETH/USD", 2)

	report, err := suite.seq.LiquidateAll(suite.ctx)
	suite.NoError(err)
	suite.True(report.TradingDisabled)
	suite.True(report.FullyClosed())
	suite.Len(report.Positions, 2)
	suite.Equal("false", suite.flagValue())

	positions, err := suite.broker.GetPositions(suite.ctx)
	suite.NoError(err)
	suite.Empty(positions)
}

func (suite *SequencerTestSuite) TestDisableFailureLeavesPositionsUntouched() {
	suite.broker.SetPrice("BTC/USD", 50000)
	suite.broker.SetPosition("BTC/USD", 0.5)
	suite.store.failWrites = true

	report, err := suite.seq.LiquidateAll(suite.ctx)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeLiquidationFailed))
	suite.False(report.TradingDisabled)
	suite.Empty(report.Positions)

	positions, err := suite.broker.GetPositions(suite.ctx)
	suite.NoError(err)
	suite.Len(positions, 1)
}

func (suite *SequencerTestSuite) TestPartialFailureKeepsTradingDisabled() {
	suite.broker.SetPrice("BTC/USD", 50000)
	suite.broker.SetPosition("BTC/USD", 0.5)
	// No price for ETH, so its close will fail.
	suite.broker.SetPosition("ETH/USD", 2)

	report, err := suite.seq.LiquidateAll(suite.ctx)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeLiquidationFailed))
	suite.True(report.TradingDisabled)
	suite.False(report.FullyClosed())
	suite.Len(report.Positions, 2)
	suite.Equal("false", suite.flagValue())

	failed := 0

	for _, position := range report.Positions {
		if !position.Closed {
			failed++
			suite.NotEmpty(position.Error)
		}
	}

	suite.Equal(1, failed)
}

func (suite *SequencerTestSuite) TestListingFailureAfterDisable() {
	seq := NewSequencer(suite.store, &listingFailBroker{PaperBroker: suite.broker}, logger.NewNopLogger())

	report, err := seq.LiquidateAll(suite.ctx)
	suite.Error(err)
	suite.True(report.TradingDisabled)
	suite.Empty(report.Positions)
	suite.Equal("false", suite.flagValue())
}

func (suite *SequencerTestSuite) TestNoPositionsStillDisablesTrading() {
	report, err := suite.seq.LiquidateAll(suite.ctx)
	suite.NoError(err)
	suite.True(report.TradingDisabled)
	suite.True(report.FullyClosed())
	suite.Empty(report.Positions)
	suite.Equal("false", suite.flagValue())
}
