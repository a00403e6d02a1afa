// Package strategy defines the strategy contract and the registry that
// tracks which strategies exist and which are enabled. Strategies are pure
// evaluators: they read a market snapshot and return a signal, never
// touching the store or the broker themselves.
package strategy

import (
	"github.com/stackmesh/tradepilot/internal/types"
)

// Strategy is the contract every trading strategy implements.
type Strategy interface {
	// ID returns the stable identifier used for registration and the
	// enabled-set key.
	ID() string
	// Name returns the display name.
	Name() string
	// Description returns a one-line description for operator UIs.
	Description() string
	// RequiredDataKeys returns the data keys that must be present in the
	// snapshot before ProcessData is called.
	RequiredDataKeys() []string
	// ProcessData evaluates the snapshot for one symbol. A nil signal with
	// a nil error means no actionable verdict this tick.
	ProcessData(symbol string, data types.MarketSnapshot) (*types.Signal, error)
}
