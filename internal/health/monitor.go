// Package health derives a tri-state health verdict for the strategy
// manager from heartbeat freshness and registry contents. Checks are pure
// reads against the shared store so any process can run them.
package health

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// staleGraceFloor is the minimum staleness allowance. Short poll intervals
// still get this much grace so a brief scheduling hiccup is not a stall.
const staleGraceFloor = 120 * time.Second

// Monitor checks strategy-manager health.
type Monitor interface {
	// Check returns a verdict. It never returns a Go error: a transiently
	// unreachable store yields a report with status error instead.
	Check(ctx context.Context) types.HealthReport
}

// MonitorV1 implements Monitor.
type MonitorV1 struct {
	store store.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewMonitor creates a health monitor.
func NewMonitor(s store.Store, log *logger.Logger) *MonitorV1 {
	return &MonitorV1{
		store: s,
		log:   log,
		now:   time.Now,
	}
}

// Check implements Monitor.
func (m *MonitorV1) Check(ctx context.Context) types.HealthReport {
	report := types.HealthReport{
		Status:    types.HealthStatusUnknown,
		Timestamp: m.now().UTC(),
	}

	// A poisoned marker always wins: the loop died mid-tick and only an
	// explicit reset clears it.
	if marker, err := m.store.Get(ctx, store.KeyManagerError); err == nil {
		report.Status = types.HealthStatusError
		report.Message = marker

		return report
	} else if !errors.HasCode(err, errors.ErrCodeKeyNotFound) {
		return m.storeFailure(report, err)
	}

	running, err := m.store.Get(ctx, store.KeyManagerRunning)
	if err != nil && !errors.HasCode(err, errors.ErrCodeKeyNotFound) {
		return m.storeFailure(report, err)
	}

	report.ManagerRunning = running == "true"

	strategies, err := m.registeredStrategies(ctx)
	if err != nil {
		return m.storeFailure(report, err)
	}

	report.Strategies = strategies

	signals, err := m.store.Keys(ctx, store.PatternSignals)
	if err != nil {
		return m.storeFailure(report, err)
	}

	report.SignalCount = len(signals)

	var heartbeat types.ManagerHeartbeat

	err = m.store.GetJSON(ctx, store.KeyManagerHeartbeat, &heartbeat)
	switch {
	case errors.HasCode(err, errors.ErrCodeKeyNotFound):
		report.Status = types.HealthStatusUnknown
		report.Message = "no heartbeat has been observed"

		return report
	case err != nil:
		return m.storeFailure(report, err)
	}

	if len(strategies) == 0 {
		report.Status = types.HealthStatusLimited
		report.Message = "no strategies registered"

		return report
	}

	age := m.now().Sub(heartbeat.LastTickAt)
	grace := staleGrace(heartbeat.Interval)

	switch {
	case age > grace:
		report.Status = types.HealthStatusLimited
		report.Message = "heartbeat stale: last tick " + age.Round(time.Second).String() + " ago"
	case !report.ManagerRunning:
		report.Status = types.HealthStatusLimited
		report.Message = "strategies registered but manager is not running"
	default:
		report.Status = types.HealthStatusHealthy
		report.Message = "manager is running and heartbeat is fresh"
	}

	return report
}

func (m *MonitorV1) registeredStrategies(ctx context.Context) ([]string, error) {
	keys, err := m.store.Keys(ctx, store.PatternStrategyInfo)
	if err != nil {
		return nil, err
	}

	strategies := make([]string, 0, len(keys))

	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, "strategy:"), ":info")
		strategies = append(strategies, id)
	}

	return strategies, nil
}

func (m *MonitorV1) storeFailure(report types.HealthReport, err error) types.HealthReport {
	m.log.Warn("Health check could not reach the store", zap.Error(err))

	report.Status = types.HealthStatusError
	report.Message = "store unreachable: " + err.Error()

	return report
}

// staleGrace is how old a heartbeat may be before the manager counts as
// stalled: twice the poll interval, floored at two minutes.
func staleGrace(intervalSeconds int) time.Duration {
	grace := 2 * time.Duration(intervalSeconds) * time.Second
	if grace < staleGraceFloor {
		grace = staleGraceFloor
	}

	return grace
}

// Verify MonitorV1 implements the Monitor interface.
var _ Monitor = (*MonitorV1)(nil)
