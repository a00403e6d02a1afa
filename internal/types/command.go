package types

import "time"

// CommandAction identifies one operator command on the strategy_updates channel.
type CommandAction string

const (
	CommandStart   CommandAction = "start"
	CommandStop    CommandAction = "stop"
	CommandRestart CommandAction = "restart"
	CommandEnable  CommandAction = "enable"
	CommandReset   CommandAction = "reset"
)

// Command is the payload published on the command channel. The manager
// process is the sole consumer; any process (operator API, restart
// controller) may publish.
type Command struct {
	Action CommandAction `json:"action" validate:"required,oneof=start stop restart enable reset"`
	// RequestID correlates the command with its acknowledgment key
	RequestID string `json:"request_id" validate:"required"`
	// Interval is the poll interval in seconds for start/restart
	Interval int `json:"interval,omitempty"`
	// StrategyID and Enabled apply to the enable action
	StrategyID string `json:"strategy_id,omitempty"`
	Enabled    bool   `json:"enabled,omitempty"`
}

// CommandAck is the synchronous acknowledgment written to the reply key for
// a command's request id. Convergence is observed asynchronously via the
// heartbeat and health keys.
type CommandAck struct {
	RequestID string    `json:"request_id"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
