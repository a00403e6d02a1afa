// Package restart orchestrates stop-then-start reconciliation across
// process boundaries. The controller never calls the manager directly; it
// publishes the same commands the operator UI uses and confirms the
// outcome by observing health at fixed delays.
package restart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/health"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// lockTTL bounds how long a crashed controller can hold the restart lock.
// The reset path exists to clear it sooner.
const lockTTL = 2 * time.Minute

// defaultCheckDelays is the bounded observation schedule: immediately,
// then +2s, +5s, +10s after the start command.
var defaultCheckDelays = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Controller runs restart and reset operations.
type Controller interface {
	// Restart issues stop-then-start and returns the attempt with its
	// terminal confirmation status. Rejects with ErrCodeRestartInProgress
	// while another attempt holds the lock.
	Restart(ctx context.Context, interval time.Duration) (types.RestartAttempt, error)
	// Reset is the destructive unstick path: clears control-plane markers
	// without restarting anything and reports what it found.
	Reset(ctx context.Context) (types.ResetReport, error)
}

// ControllerV1 implements Controller.
type ControllerV1 struct {
	store   store.Store
	monitor health.Monitor
	log     *logger.Logger

	checkDelays []time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewController creates a restart controller.
func NewController(s store.Store, monitor health.Monitor, log *logger.Logger) *ControllerV1 {
	return &ControllerV1{
		store:       s,
		monitor:     monitor,
		log:         log,
		checkDelays: defaultCheckDelays,
		sleep:       sleepCtx,
	}
}

// Restart implements Controller.
func (c *ControllerV1) Restart(ctx context.Context, interval time.Duration) (types.RestartAttempt, error) {
	if interval <= 0 {
		return types.RestartAttempt{}, errors.Newf(errors.ErrCodeInvalidInterval,
			"poll interval must be positive, got %v", interval)
	}

	attempt := types.RestartAttempt{
		ID:                 uuid.NewString(),
		RequestedAt:        time.Now().UTC(),
		Interval:           int(interval.Seconds()),
		ConfirmationStatus: types.ConfirmationPending,
	}

	acquired, err := c.store.SetNX(ctx, store.KeyRestartLock, attempt.ID, lockTTL)
	if err != nil {
		return types.RestartAttempt{}, errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to acquire restart lock", err)
	}

	if !acquired {
		return types.RestartAttempt{}, errors.New(errors.ErrCodeRestartInProgress,
			"a restart attempt is already in progress")
	}

	defer func() {
		if err := c.store.Delete(context.Background(), store.KeyRestartLock); err != nil {
			c.log.Error("Failed to clear restart lock", zap.Error(err))
		}
	}()

	if err := c.store.SetJSON(ctx, store.KeyRestartAttempt, attempt, 0); err != nil {
		return types.RestartAttempt{}, errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to record restart attempt", err)
	}

	c.log.Info("Restart requested",
		zap.String("attempt", attempt.ID),
		zap.Duration("interval", interval))

	// Same control plane the operator uses: discrete stop then start.
	if err := c.publish(ctx, types.Command{Action: types.CommandStop, RequestID: uuid.NewString()}); err != nil {
		return c.finish(ctx, attempt, types.ConfirmationFailed, "failed to publish stop command: "+err.Error())
	}

	if err := c.publish(ctx, types.Command{
		Action:    types.CommandStart,
		RequestID: uuid.NewString(),
		Interval:  attempt.Interval,
	}); err != nil {
		return c.finish(ctx, attempt, types.ConfirmationFailed, "failed to publish start command: "+err.Error())
	}

	status, note := c.observe(ctx)

	return c.finish(ctx, attempt, status, note)
}

// observe runs the bounded confirmation checks and derives the verdict.
func (c *ControllerV1) observe(ctx context.Context) (types.ConfirmationStatus, string) {
	var statuses []types.HealthStatus

	elapsed := time.Duration(0)

	for _, delay := range c.checkDelays {
		if wait := delay - elapsed; wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return types.ConfirmationUncertain, "observation cancelled: " + err.Error()
			}
		}

		elapsed = delay

		report := c.monitor.Check(ctx)
		statuses = append(statuses, report.Status)

		c.log.Info("Restart confirmation check",
			zap.Duration("at", delay),
			zap.String("status", string(report.Status)))

		if report.Status == types.HealthStatusHealthy {
			return types.ConfirmationConfirmed, "healthy observed at +" + delay.String()
		}
	}

	errorCount := 0
	for _, status := range statuses {
		if status == types.HealthStatusError {
			errorCount++
		}
	}

	switch {
	case errorCount == len(statuses):
		return types.ConfirmationFailed, "error persisted through all checks"
	case errorCount > 0:
		return types.ConfirmationUncertain, "checks disagreed between error and transitioning states"
	default:
		return types.ConfirmationPending, "manager was still transitioning at the final check"
	}
}

// finish writes the terminal status back to the attempt record.
func (c *ControllerV1) finish(ctx context.Context, attempt types.RestartAttempt, status types.ConfirmationStatus, note string) (types.RestartAttempt, error) {
	attempt.ConfirmationStatus = status
	attempt.Note = note

	if err := c.store.SetJSON(ctx, store.KeyRestartAttempt, attempt, 0); err != nil {
		c.log.Error("Failed to write terminal restart status", zap.Error(err))

		return attempt, errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to write terminal restart status", err)
	}

	c.log.Info("Restart finished",
		zap.String("attempt", attempt.ID),
		zap.String("confirmation", string(status)),
		zap.String("note", note))

	return attempt, nil
}

// Reset implements Controller. Destructive: clears every control-plane
// marker so a diverged manager can be brought up from a clean slate.
// Signals are left in place; only coordination state is wiped.
func (c *ControllerV1) Reset(ctx context.Context) (types.ResetReport, error) {
	report := types.ResetReport{Timestamp: time.Now().UTC()}

	if running, err := c.store.Get(ctx, store.KeyManagerRunning); err == nil {
		report.WasRunning = running == "true"
	}

	infoKeys, err := c.store.Keys(ctx, store.PatternStrategyInfo)
	if err != nil {
		return report, errors.Wrap(errors.ErrCodeStoreReadFailed, "failed to enumerate strategies", err)
	}

	for _, key := range infoKeys {
		id := key[len("strategy:") : len(key)-len(":info")]
		report.StrategiesFound = append(report.StrategiesFound, id)
	}

	signalKeys, err := c.store.Keys(ctx, store.PatternSignals)
	if err != nil {
		return report, errors.Wrap(errors.ErrCodeStoreReadFailed, "failed to count signals", err)
	}

	report.SignalCount = len(signalKeys)

	markers := append([]string{
		store.KeyManagerEnabledSet,
		store.KeyManagerHeartbeat,
		store.KeyManagerRunning,
		store.KeyManagerInterval,
		store.KeyManagerError,
		store.KeyRestartLock,
		store.KeyRestartAttempt,
	}, infoKeys...)

	if err := c.store.Delete(ctx, markers...); err != nil {
		return report, errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to clear control-plane markers", err)
	}

	c.log.Warn("Control-plane reset executed",
		zap.Strings("strategies_found", report.StrategiesFound),
		zap.Int("signal_count", report.SignalCount),
		zap.Bool("was_running", report.WasRunning))

	return report, nil
}

func (c *ControllerV1) publish(ctx context.Context, command types.Command) error {
	payload, err := json.Marshal(command)
	if err != nil {
		return err
	}

	return c.store.Publish(ctx, store.ChannelCommands, string(payload))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Verify ControllerV1 implements the Controller interface.
var _ Controller = (*ControllerV1)(nil)
