package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// fakeGate records evaluated signals and returns a scripted result.
type fakeGate struct {
	mu       sync.Mutex
	status   types.TradeStatus
	orderID  string
	received []types.Signal
}

func (f *fakeGate) Evaluate(ctx context.Context, signal types.Signal) types.TradeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, signal)

	return types.TradeResult{
		Symbol:   signal.Symbol,
		Decision: signal.Decision,
		Status:   f.status,
		OrderID:  f.orderID,
	}
}

func (f *fakeGate) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.received)
}

type ExecutorTestSuite struct {
	suite.Suite
	store    *store.MemoryStore
	gate     *fakeGate
	executor *ExecutorV1
	ctx      context.Context
	now      time.Time
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

func (suite *ExecutorTestSuite) SetupTest() {
	suite.store = store.NewMemoryStore()
	suite.gate = &fakeGate{status: types.TradeStatusExecuted, orderID: "order-1"}
	suite.executor = NewExecutor(suite.store, suite.gate, Config{
		Symbols: []string{"BTC/USD"},
	}, logger.NewNopLogger())
	suite.ctx = context.Background()
	suite.now = time.Now().UTC()
	suite.executor.now = func() time.Time { return suite.now }
}

func (suite *ExecutorTestSuite) writeSignal(symbol string, decision types.Decision, at time.Time) {
	signal := types.Signal{
		Symbol:     symbol,
		Decision:   decision,
		Confidence: 0.8,
		Strategy:   "rsi",
		Timestamp:  at,
	}
	suite.NoError(suite.store.SetJSON(suite.ctx, store.KeySignal(symbol), signal, 0))
}

func (suite *ExecutorTestSuite) TestSweepEvaluatesSignalAndWritesResult() {
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)

	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(1, suite.gate.calls())

	var result types.TradeResult
	suite.NoError(suite.store.GetJSON(suite.ctx, store.KeyTradeResult("BTC/USD"), &result))
	suite.Equal(types.TradeStatusExecuted, result.Status)
	suite.Equal("order-1", result.OrderID)
	suite.Equal(suite.now, result.Timestamp)
}

func (suite *ExecutorTestSuite) TestSignalIsEvaluatedAtMostOnce() {
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)

	suite.executor.SweepOnce(suite.ctx)
	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(1, suite.gate.calls())
}

func (suite *ExecutorTestSuite) TestNewerSignalIsEvaluatedAgain() {
	suite.gate.status = types.TradeStatusSkipped
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)
	suite.executor.SweepOnce(suite.ctx)

	suite.now = suite.now.Add(time.Minute)
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)
	suite.executor.SweepOnce(suite.ctx)

	suite.Equal(2, suite.gate.calls())
}

func (suite *ExecutorTestSuite) TestStaleSignalIsIgnored() {
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now.Add(-6*time.Minute))

	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(0, suite.gate.calls())

	_, err := suite.store.Get(suite.ctx, store.KeyTradeResult("BTC/USD"))
	suite.True(errors.HasCode(err, errors.ErrCodeKeyNotFound))
}

func (suite *ExecutorTestSuite) TestCooldownBlocksFollowupTrade() {
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)
	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(1, suite.gate.calls())

	// A fresh signal one minute later, still inside the cooldown window.
	suite.now = suite.now.Add(time.Minute)
	suite.writeSignal("BTC/USD", types.DecisionSell, suite.now)
	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(1, suite.gate.calls())

	// Past the cooldown the next signal goes through.
	suite.now = suite.now.Add(5 * time.Minute)
	suite.writeSignal("BTC/USD", types.DecisionSell, suite.now)
	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(2, suite.gate.calls())
}

func (suite *ExecutorTestSuite) TestSkippedTradeDoesNotStartCooldown() {
	suite.gate.status = types.TradeStatusSkipped
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)
	suite.executor.SweepOnce(suite.ctx)

	suite.now = suite.now.Add(time.Minute)
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)
	suite.executor.SweepOnce(suite.ctx)

	suite.Equal(2, suite.gate.calls())
}

func (suite *ExecutorTestSuite) TestHoldSignalIgnoresCooldown() {
	suite.writeSignal("BTC/USD", types.DecisionBuy, suite.now)
	suite.executor.SweepOnce(suite.ctx)

	suite.now = suite.now.Add(time.Minute)
	suite.writeSignal("BTC/USD", types.DecisionHold, suite.now)
	suite.executor.SweepOnce(suite.ctx)

	suite.Equal(2, suite.gate.calls())
}

func (suite *ExecutorTestSuite) TestMissingSignalDoesNothing() {
	suite.executor.SweepOnce(suite.ctx)
	suite.Equal(0, suite.gate.calls())
}

func (suite *ExecutorTestSuite) TestStartTwiceFails() {
	executor := NewExecutor(suite.store, suite.gate, Config{
		Symbols:       []string{"BTC/USD"},
		SweepInterval: 50 * time.Millisecond,
	}, logger.NewNopLogger())

	suite.NoError(executor.Start())
	defer func() { _ = executor.Stop() }()

	err := executor.Start()
	suite.True(errors.HasCode(err, errors.ErrCodeAlreadyRunning))
}

func (suite *ExecutorTestSuite) TestStopWithoutStartFails() {
	err := suite.executor.Stop()
	suite.True(errors.HasCode(err, errors.ErrCodeNotRunning))
}

func (suite *ExecutorTestSuite) TestLoopSweepsOnItsOwn() {
	suite.writeSignal("BTC/USD", types.DecisionBuy, time.Now().UTC())

	executor := NewExecutor(suite.store, suite.gate, Config{
		Symbols:       []string{"BTC/USD"},
		SweepInterval: 50 * time.Millisecond,
	}, logger.NewNopLogger())

	suite.NoError(executor.Start())
	suite.True(executor.IsRunning())

	suite.Eventually(func() bool {
		return suite.gate.calls() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	suite.NoError(executor.Stop())
	suite.False(executor.IsRunning())
}
