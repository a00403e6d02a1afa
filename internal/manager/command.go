package manager

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// ackTTL bounds how long a command acknowledgment stays readable.
const ackTTL = 5 * time.Minute

// Resetter is the emergency-reset dependency. The restart controller
// implements it; the listener only invokes it on an explicit reset command.
type Resetter interface {
	Reset(ctx context.Context) (types.ResetReport, error)
}

// CommandListener consumes operator commands from the shared store's
// command channel and applies them to the manager. Every command gets an
// acknowledgment written under its request id.
type CommandListener struct {
	manager  StrategyManager
	store    store.Store
	resetter Resetter
	log      *logger.Logger
}

// NewCommandListener creates a command listener.
func NewCommandListener(m StrategyManager, s store.Store, resetter Resetter, log *logger.Logger) *CommandListener {
	return &CommandListener{
		manager:  m,
		store:    s,
		resetter: resetter,
		log:      log,
	}
}

// Listen subscribes to the command channel and dispatches until ctx is
// cancelled. Blocking; run it in its own goroutine.
func (l *CommandListener) Listen(ctx context.Context) error {
	messages, cancel, err := l.store.Subscribe(ctx, store.ChannelCommands)
	if err != nil {
		return err
	}
	defer cancel()

	l.log.Info("Command listener started", zap.String("channel", store.ChannelCommands))

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return errors.New(errors.ErrCodeStoreUnavailable, "command channel closed")
			}

			l.dispatch(ctx, message)
		}
	}
}

func (l *CommandListener) dispatch(ctx context.Context, message string) {
	var command types.Command
	if err := json.Unmarshal([]byte(message), &command); err != nil {
		l.log.Warn("Dropping malformed command", zap.String("payload", message), zap.Error(err))

		return
	}

	l.log.Info("Command received",
		zap.String("action", string(command.Action)),
		zap.String("request_id", command.RequestID))

	err := l.apply(ctx, command)

	ack := types.CommandAck{
		RequestID: command.RequestID,
		Success:   err == nil,
		Message:   "ok",
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		ack.Message = err.Error()
		l.log.Warn("Command rejected",
			zap.String("action", string(command.Action)),
			zap.Error(err))
	}

	if command.RequestID == "" {
		return
	}

	if ackErr := l.store.SetJSON(ctx, store.KeyCommandAck(command.RequestID), ack, ackTTL); ackErr != nil {
		l.log.Error("Failed to write command ack",
			zap.String("request_id", command.RequestID), zap.Error(ackErr))
	}
}

func (l *CommandListener) apply(ctx context.Context, command types.Command) error {
	switch command.Action {
	case types.CommandStart:
		return l.manager.Start(intervalFrom(command))
	case types.CommandStop:
		return l.manager.Stop()
	case types.CommandRestart:
		// Restarts arrive as discrete stop/start commands from the
		// restart controller; a bare restart is applied inline.
		if err := l.manager.Stop(); err != nil && !errors.HasCode(err, errors.ErrCodeNotRunning) {
			return err
		}

		return l.manager.Start(intervalFrom(command))
	case types.CommandEnable:
		if command.StrategyID == "" {
			return errors.New(errors.ErrCodeMissingParameter, "enable command requires a strategy id")
		}

		return l.manager.Enable(command.StrategyID, command.Enabled)
	case types.CommandReset:
		if l.resetter == nil {
			return errors.New(errors.ErrCodeCommandRejected, "reset is not available")
		}

		report, err := l.resetter.Reset(ctx)
		if err != nil {
			return err
		}

		l.log.Info("Reset completed",
			zap.Strings("strategies_found", report.StrategiesFound),
			zap.Int("signal_count", report.SignalCount),
			zap.Bool("was_running", report.WasRunning))

		return nil
	default:
		return errors.Newf(errors.ErrCodeCommandRejected, "unknown command action: %s", command.Action)
	}
}

func intervalFrom(command types.Command) time.Duration {
	if command.Interval <= 0 {
		return DefaultInterval
	}

	return time.Duration(command.Interval) * time.Second
}
