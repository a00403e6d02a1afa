package types

import "time"

// ConfirmationStatus is the verdict of one restart attempt.
type ConfirmationStatus string

const (
	// ConfirmationPending means the manager is still transitioning at the
	// last observation
	ConfirmationPending ConfirmationStatus = "pending"
	// ConfirmationConfirmed means a healthy verdict was observed
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	// ConfirmationUncertain means the bounded checks disagreed
	ConfirmationUncertain ConfirmationStatus = "uncertain"
	// ConfirmationFailed means an error persisted through every check
	ConfirmationFailed ConfirmationStatus = "failed"
)

// IsTerminal reports whether the status ends the attempt. Pending is terminal
// once written back: the observation window is bounded, and a still
// transitioning manager at the final check yields pending rather than an
// open-ended poll.
func (s ConfirmationStatus) IsTerminal() bool {
	switch s {
	case ConfirmationConfirmed, ConfirmationUncertain, ConfirmationFailed, ConfirmationPending:
		return true
	}

	return false
}

// RestartAttempt is the state of one restart/reset operation. At most one
// attempt is in flight at a time, enforced by a store-level lock.
type RestartAttempt struct {
	ID                 string             `json:"id" yaml:"id"`
	RequestedAt        time.Time          `json:"requested_at" yaml:"requested_at"`
	Interval           int                `json:"interval" yaml:"interval"`
	ConfirmationStatus ConfirmationStatus `json:"confirmation_status" yaml:"confirmation_status"`
	Note               string             `json:"note" yaml:"note"`
}

// ResetReport describes the control-plane state found and cleared by an
// emergency reset.
type ResetReport struct {
	StrategiesFound []string  `json:"strategies_found" yaml:"strategies_found"`
	SignalCount     int       `json:"signal_count" yaml:"signal_count"`
	WasRunning      bool      `json:"was_running" yaml:"was_running"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
}
