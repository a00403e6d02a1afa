package types

import "time"

// ManagerStatus is the liveness state reported for the strategy manager.
type ManagerStatus string

const (
	ManagerStatusRunning ManagerStatus = "running"
	ManagerStatusStalled ManagerStatus = "stalled"
	ManagerStatusUnknown ManagerStatus = "unknown"
)

// ManagerHeartbeat is the liveness record rewritten by the strategy manager
// once per poll cycle. Staleness beyond roughly twice the poll interval
// implies the manager is stalled.
type ManagerHeartbeat struct {
	LastTickAt    time.Time     `json:"last_tick_at" yaml:"last_tick_at"`
	Status        ManagerStatus `json:"status" yaml:"status"`
	StatusMessage string        `json:"status_message" yaml:"status_message"`
	// Interval is the poll interval in seconds the loop was started with
	Interval int `json:"interval" yaml:"interval"`
}

// HealthStatus is the tri-state (plus unknown) verdict derived from the
// heartbeat and the registry contents.
type HealthStatus string

const (
	HealthStatusHealthy HealthStatus = "healthy"
	HealthStatusLimited HealthStatus = "limited"
	HealthStatusError   HealthStatus = "error"
	HealthStatusUnknown HealthStatus = "unknown"
)

// HealthReport is the result of one health check. Pure read; carries no
// side effects.
type HealthReport struct {
	Status         HealthStatus `json:"status" yaml:"status"`
	Message        string       `json:"message" yaml:"message"`
	ManagerRunning bool         `json:"manager_running" yaml:"manager_running"`
	Strategies     []string     `json:"strategies" yaml:"strategies"`
	SignalCount    int          `json:"signal_count" yaml:"signal_count"`
	Timestamp      time.Time    `json:"timestamp" yaml:"timestamp"`
}
