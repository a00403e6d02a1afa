package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/strategy"
	"github.com/stackmesh/tradepilot/internal/types"
)

type fakeResetter struct {
	report types.ResetReport
	err    error
	calls  int
}

func (f *fakeResetter) Reset(ctx context.Context) (types.ResetReport, error) {
	f.calls++

	return f.report, f.err
}

type CommandListenerTestSuite struct {
	suite.Suite
	registry *strategy.RegistryV1
	store    *store.MemoryStore
	manager  *StrategyManagerV1
	resetter *fakeResetter
	listener *CommandListener
	ctx      context.Context
	stop     context.CancelFunc
}

func TestCommandListenerSuite(t *testing.T) {
	suite.Run(t, new(CommandListenerTestSuite))
}

func (suite *CommandListenerTestSuite) SetupTest() {
	suite.registry = strategy.NewRegistry()
	suite.store = store.NewMemoryStore()
	suite.manager = NewStrategyManager(suite.registry, suite.store, Config{
		Symbols: []string{"AAPL"},
	}, logger.NewNopLogger())
	suite.resetter = &fakeResetter{}
	suite.listener = NewCommandListener(suite.manager, suite.store, suite.resetter, logger.NewNopLogger())

	suite.ctx, suite.stop = context.WithCancel(context.Background())

	go func() {
		_ = suite.listener.Listen(suite.ctx)
	}()

	// Let the subscription register before tests publish.
	time.Sleep(20 * time.Millisecond)
}

func (suite *CommandListenerTestSuite) TearDownTest() {
	suite.stop()

	if suite.manager.IsRunning() {
		_ = suite.manager.Stop()
	}
}

func (suite *CommandListenerTestSuite) publish(command types.Command) {
	payload, err := json.Marshal(command)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.store.Publish(context.Background(), store.ChannelCommands, string(payload)))
}

func (suite *CommandListenerTestSuite) waitForAck(requestID string) types.CommandAck {
	var ack types.CommandAck

	suite.Require().Eventually(func() bool {
		return suite.store.GetJSON(context.Background(), store.KeyCommandAck(requestID), &ack) == nil
	}, 2*time.Second, 10*time.Millisecond)

	return ack
}

func (suite *CommandListenerTestSuite) TestStartCommand() {
	suite.publish(types.Command{Action: types.CommandStart, RequestID: "req-1", Interval: 30})

	ack := suite.waitForAck("req-1")
	suite.True(ack.Success)
	suite.True(suite.manager.IsRunning())
	suite.Equal(30*time.Second, suite.manager.Interval())
}

func (suite *CommandListenerTestSuite) TestStopWithoutStartIsRejected() {
	suite.publish(types.Command{Action: types.CommandStop, RequestID: "req-2"})

	ack := suite.waitForAck("req-2")
	suite.False(ack.Success)
	suite.Contains(ack.Message, "stopped")
}

func (suite *CommandListenerTestSuite) TestEnableCommand() {
	suite.Require().NoError(suite.registry.Register(&scriptedStrategy{id: "rsi"}))

	suite.publish(types.Command{Action: types.CommandEnable, RequestID: "req-3", StrategyID: "rsi", Enabled: true})

	ack := suite.waitForAck("req-3")
	suite.True(ack.Success)
	suite.True(suite.registry.IsEnabled("rsi"))
}

func (suite *CommandListenerTestSuite) TestEnableWithoutStrategyIDIsRejected() {
	suite.publish(types.Command{Action: types.CommandEnable, RequestID: "req-4", Enabled: true})

	ack := suite.waitForAck("req-4")
	suite.False(ack.Success)
}

func (suite *CommandListenerTestSuite) TestRestartCommandStartsAStoppedManager() {
	suite.publish(types.Command{Action: types.CommandRestart, RequestID: "req-5", Interval: 15})

	ack := suite.waitForAck("req-5")
	suite.True(ack.Success)
	suite.True(suite.manager.IsRunning())
	suite.Equal(15*time.Second, suite.manager.Interval())
}

func (suite *CommandListenerTestSuite) TestResetCommandInvokesResetter() {
	suite.resetter.report = types.ResetReport{StrategiesFound: []string{"rsi"}, SignalCount: 2}

	suite.publish(types.Command{Action: types.CommandReset, RequestID: "req-6"})

	ack := suite.waitForAck("req-6")
	suite.True(ack.Success)
	suite.Equal(1, suite.resetter.calls)
}

func (suite *CommandListenerTestSuite) TestMalformedCommandIsDropped() {
	suite.Require().NoError(suite.store.Publish(context.Background(), store.ChannelCommands, "not json"))

	// A good command after the bad one still works.
	suite.publish(types.Command{Action: types.CommandStart, RequestID: "req-7", Interval: 10})
	ack := suite.waitForAck("req-7")
	suite.True(ack.Success)
}

func (suite *CommandListenerTestSuite) TestUnknownActionIsRejected() {
	suite.publish(types.Command{Action: "explode", RequestID: "req-8"})

	ack := suite.waitForAck("req-8")
	suite.False(ack.Success)
}
