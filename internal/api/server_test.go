package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// fakeManager scripts the manager lifecycle surface.
type fakeManager struct {
	running   bool
	startErr  error
	stopErr   error
	enableErr error
	enabled   map[string]bool
	interval  time.Duration
}

func (f *fakeManager) Start(interval time.Duration) error {
	if f.startErr != nil {
		return f.startErr
	}

	f.running = true
	f.interval = interval

	return nil
}

func (f *fakeManager) Stop() error {
	if f.stopErr != nil {
		return f.stopErr
	}

	f.running = false

	return nil
}

func (f *fakeManager) Enable(strategyID string, enabled bool) error {
	if f.enableErr != nil {
		return f.enableErr
	}

	f.enabled[strategyID] = enabled

	return nil
}

func (f *fakeManager) IsRunning() bool { return f.running }

func (f *fakeManager) Interval() time.Duration { return f.interval }

// fakeRegistry serves a fixed descriptor list.
type fakeRegistry struct {
	descriptors []types.StrategyDescriptor
}

func (f *fakeRegistry) List() []types.StrategyDescriptor { return f.descriptors }

// fakeMonitor returns a scripted health report.
type fakeMonitor struct {
	report types.HealthReport
}

func (f *fakeMonitor) Check(ctx context.Context) types.HealthReport { return f.report }

// fakeController scripts restart and reset outcomes.
type fakeController struct {
	attempt    types.RestartAttempt
	restartErr error
	report     types.ResetReport
	resetErr   error
}

func (f *fakeController) Restart(ctx context.Context, interval time.Duration) (types.RestartAttempt, error) {
	if f.restartErr != nil {
		return types.RestartAttempt{}, f.restartErr
	}

	f.attempt.Interval = int(interval.Seconds())

	return f.attempt, nil
}

func (f *fakeController) Reset(ctx context.Context) (types.ResetReport, error) {
	return f.report, f.resetErr
}

// fakeSequencer scripts the liquidation outcome.
type fakeSequencer struct {
	report types.LiquidationReport
	err    error
	calls  int
}

func (f *fakeSequencer) LiquidateAll(ctx context.Context) (types.LiquidationReport, error) {
	f.calls++

	return f.report, f.err
}

type ServerTestSuite struct {
	suite.Suite
	store      *store.MemoryStore
	manager    *fakeManager
	registry   *fakeRegistry
	monitor    *fakeMonitor
	controller *fakeController
	sequencer  *fakeSequencer
	server     *Server
	ctx        context.Context
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	suite.store = store.NewMemoryStore()
	suite.manager = &fakeManager{enabled: make(map[string]bool)}
	suite.registry = &fakeRegistry{descriptors: []types.StrategyDescriptor{
		{ID: "rsi", Name: "RSI", Enabled: true},
	}}
	suite.monitor = &fakeMonitor{report: types.HealthReport{Status: types.HealthStatusHealthy}}
	suite.controller = &fakeController{
		attempt: types.RestartAttempt{ID: "attempt-1", ConfirmationStatus: types.ConfirmationConfirmed},
	}
	suite.sequencer = &fakeSequencer{report: types.LiquidationReport{TradingDisabled: true}}
	suite.server = NewServer(suite.manager, suite.registry, suite.monitor,
		suite.controller, suite.sequencer, suite.store, logger.NewNopLogger())
	suite.ctx = context.Background()
}

func (suite *ServerTestSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	suite.server.Router().ServeHTTP(recorder, req)

	return recorder
}

func (suite *ServerTestSuite) TestHealthHealthy() {
	recorder := suite.do(http.MethodGet, "/api/health", nil)
	suite.Equal(http.StatusOK, recorder.Code)

	var report types.HealthReport
	suite.NoError(json.Unmarshal(recorder.Body.Bytes(), &report))
	suite.Equal(types.HealthStatusHealthy, report.Status)
}

func (suite *ServerTestSuite) TestHealthErrorMapsTo503() {
	suite.monitor.report = types.HealthReport{Status: types.HealthStatusError, Message: "store unreachable"}

	recorder := suite.do(http.MethodGet, "/api/health", nil)
	suite.Equal(http.StatusServiceUnavailable, recorder.Code)
}

func (suite *ServerTestSuite) TestListStrategies() {
	recorder := suite.do(http.MethodGet, "/api/strategies", nil)
	suite.Equal(http.StatusOK, recorder.Code)

	var descriptors []types.StrategyDescriptor
	suite.NoError(json.Unmarshal(recorder.Body.Bytes(), &descriptors))
	suite.Len(descriptors, 1)
	suite.Equal("rsi", descriptors[0].ID)
}

func (suite *ServerTestSuite) TestEnableStrategy() {
	recorder := suite.do(http.MethodPost, "/api/strategies/rsi/enable", map[string]any{"enabled": true})
	suite.Equal(http.StatusOK, recorder.Code)
	suite.True(suite.manager.enabled["rsi"])
}

func (suite *ServerTestSuite) TestEnableUnknownStrategyIs404() {
	suite.manager.enableErr = errors.New(errors.ErrCodeStrategyNotFound, "no such strategy")

	recorder := suite.do(http.MethodPost, "/api/strategies/nope/enable", map[string]any{"enabled": true})
	suite.Equal(http.StatusNotFound, recorder.Code)
}

func (suite *ServerTestSuite) TestStartManagerWithInterval() {
	recorder := suite.do(http.MethodPost, "/api/manager/start", map[string]any{"interval": 30})
	suite.Equal(http.StatusOK, recorder.Code)
	suite.True(suite.manager.running)
	suite.Equal(30*time.Second, suite.manager.interval)
}

func (suite *ServerTestSuite) TestStartManagerDefaultsInterval() {
	recorder := suite.do(http.MethodPost, "/api/manager/start", nil)
	suite.Equal(http.StatusOK, recorder.Code)
	suite.Equal(60*time.Second, suite.manager.interval)
}

func (suite *ServerTestSuite) TestStartWhileRunningIs409() {
	suite.manager.startErr = errors.New(errors.ErrCodeAlreadyRunning, "already running")

	recorder := suite.do(http.MethodPost, "/api/manager/start", nil)
	suite.Equal(http.StatusConflict, recorder.Code)
}

func (suite *ServerTestSuite) TestStopWhileStoppedIs409() {
	suite.manager.stopErr = errors.New(errors.ErrCodeNotRunning, "not running")

	recorder := suite.do(http.MethodPost, "/api/manager/stop", nil)
	suite.Equal(http.StatusConflict, recorder.Code)
}

func (suite *ServerTestSuite) TestRestartReturnsAttempt() {
	recorder := suite.do(http.MethodPost, "/api/manager/restart", map[string]any{"interval": 45})
	suite.Equal(http.StatusOK, recorder.Code)

	var attempt types.RestartAttempt
	suite.NoError(json.Unmarshal(recorder.Body.Bytes(), &attempt))
	suite.Equal("attempt-1", attempt.ID)
	suite.Equal(45, attempt.Interval)
	suite.Equal(types.ConfirmationConfirmed, attempt.ConfirmationStatus)
}

func (suite *ServerTestSuite) TestRestartInProgressIs409() {
	suite.controller.restartErr = errors.New(errors.ErrCodeRestartInProgress, "restart already in progress")

	recorder := suite.do(http.MethodPost, "/api/manager/restart", nil)
	suite.Equal(http.StatusConflict, recorder.Code)
}

func (suite *ServerTestSuite) TestReset() {
	suite.controller.report = types.ResetReport{WasRunning: true, SignalCount: 2}

	recorder := suite.do(http.MethodPost, "/api/manager/reset", nil)
	suite.Equal(http.StatusOK, recorder.Code)

	var report types.ResetReport
	suite.NoError(json.Unmarshal(recorder.Body.Bytes(), &report))
	suite.True(report.WasRunning)
	suite.Equal(2, report.SignalCount)
}

func (suite *ServerTestSuite) TestTradingFlagAbsentReadsDisabled() {
	recorder := suite.do(http.MethodGet, "/api/trading", nil)
	suite.Equal(http.StatusOK, recorder.Code)
	suite.JSONEq(`{"enabled": false}`, recorder.Body.String())
}

func (suite *ServerTestSuite) TestToggleTradingWritesFlag() {
	recorder := suite.do(http.MethodPost, "/api/trading/toggle", map[string]any{"enabled": true})
	suite.Equal(http.StatusOK, recorder.Code)

	value, err := suite.store.Get(suite.ctx, store.KeyTradingEnabled)
	suite.NoError(err)
	suite.Equal("true", value)

	recorder = suite.do(http.MethodPost, "/api/trading/toggle", map[string]any{"enabled": false})
	suite.Equal(http.StatusOK, recorder.Code)

	value, err = suite.store.Get(suite.ctx, store.KeyTradingEnabled)
	suite.NoError(err)
	suite.Equal("false", value)
}

func (suite *ServerTestSuite) TestLiquidate() {
	recorder := suite.do(http.MethodPost, "/api/liquidate", nil)
	suite.Equal(http.StatusOK, recorder.Code)
	suite.Equal(1, suite.sequencer.calls)

	var report types.LiquidationReport
	suite.NoError(json.Unmarshal(recorder.Body.Bytes(), &report))
	suite.True(report.TradingDisabled)
}

func (suite *ServerTestSuite) TestLiquidatePartialFailureStillReturnsReport() {
	suite.sequencer.err = errors.New(errors.ErrCodeLiquidationFailed, "liquidation incomplete")
	suite.sequencer.report = types.LiquidationReport{
		TradingDisabled: true,
		Positions:       []types.PositionCloseResult{{Symbol: "BTC/USD", Closed: false, Error: "no price"}},
	}

	recorder := suite.do(http.MethodPost, "/api/liquidate", nil)
	suite.Equal(http.StatusInternalServerError, recorder.Code)
	suite.Contains(recorder.Body.String(), "liquidation incomplete")
	suite.Contains(recorder.Body.String(), "BTC/USD")
}

func (suite *ServerTestSuite) TestSignals() {
	signal := types.Signal{Symbol: "BTC/USD", Decision: types.DecisionBuy, Confidence: 0.8, Strategy: "rsi"}
	suite.NoError(suite.store.SetJSON(suite.ctx, store.KeySignal("BTC/USD"), signal, 0))

	recorder := suite.do(http.MethodGet, "/api/signals", nil)
	suite.Equal(http.StatusOK, recorder.Code)

	var signals []types.Signal
	suite.NoError(json.Unmarshal(recorder.Body.Bytes(), &signals))
	suite.Len(signals, 1)
	suite.Equal("BTC/USD", signals[0].Symbol)
}

func (suite *ServerTestSuite) TestMalformedBodyIs400() {
	req := httptest.NewRequest(http.MethodPost, "/api/trading/toggle", bytes.NewReader([]byte("{nope")))
	recorder := httptest.NewRecorder()
	suite.server.Router().ServeHTTP(recorder, req)
	suite.Equal(http.StatusBadRequest, recorder.Code)
}
