package logger

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"

	"github.com/stackmesh/tradepilot/pkg/errors"
)

type LoggerTestSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (suite *LoggerTestSuite) TestNewLoggerDefaultsToInfo() {
	logger, err := NewLogger()
	suite.NoError(err)
	suite.NotNil(logger)
	suite.True(logger.Core().Enabled(zapcore.InfoLevel))
	suite.False(logger.Core().Enabled(zapcore.DebugLevel))
}

func (suite *LoggerTestSuite) TestDebugLevelEnablesDebugOutput() {
	logger, err := NewLoggerAtLevel("debug")
	suite.NoError(err)
	suite.True(logger.Core().Enabled(zapcore.DebugLevel))
}

func (suite *LoggerTestSuite) TestErrorLevelSuppressesInfo() {
	logger, err := NewLoggerAtLevel("error")
	suite.NoError(err)
	suite.False(logger.Core().Enabled(zapcore.InfoLevel))
	suite.True(logger.Core().Enabled(zapcore.ErrorLevel))
}

func (suite *LoggerTestSuite) TestUnknownLevelIsRejected() {
	logger, err := NewLoggerAtLevel("loud")
	suite.Nil(logger)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *LoggerTestSuite) TestSyncNilLogger() {
	logger := &Logger{Logger: nil}
	suite.NoError(logger.Sync())
}

func (suite *LoggerTestSuite) TestNopLoggerDiscardsEverything() {
	logger := NewNopLogger()
	suite.NotNil(logger)

	// Should not panic.
	logger.Info("discarded")
	logger.Error("discarded")
}
