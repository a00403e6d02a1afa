package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/stackmesh/tradepilot/pkg/errors"
)

// SizingMode selects how order notional is derived from the account.
type SizingMode string

const (
	// SizingModePercentage sizes orders as a percentage of portfolio value
	SizingModePercentage SizingMode = "percentage"
	// SizingModeFixed sizes orders as a fixed dollar amount
	SizingModeFixed SizingMode = "fixed"
)

// SizingConfig configures order sizing for the trade safety gate.
type SizingConfig struct {
	Mode SizingMode `json:"mode" yaml:"mode" validate:"required,oneof=percentage fixed"`
	// Percentage of portfolio value per order. Required in percentage mode.
	Percentage optional.Option[float64] `json:"percentage" yaml:"percentage"`
	// FixedAmount is the dollar notional per order. Required in fixed mode.
	FixedAmount optional.Option[float64] `json:"fixed_amount" yaml:"fixed_amount"`
	// MinOrderNotional is the venue minimum order value in dollars
	MinOrderNotional float64 `json:"min_order_notional" yaml:"min_order_notional" validate:"gte=0"`
}

// Validate checks the sizing configuration, including the mode-dependent
// presence and range of the percentage and fixed amount fields.
func (c *SizingConfig) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidSizing, "invalid sizing config", err)
	}

	switch c.Mode {
	case SizingModePercentage:
		if c.Percentage.IsNone() {
			return errors.New(errors.ErrCodeInvalidSizing, "percentage mode requires a percentage")
		}

		pct := c.Percentage.Unwrap()
		if pct <= 0 || pct > 100 {
			return errors.Newf(errors.ErrCodeInvalidSizing, "percentage must be in (0, 100], got %v", pct)
		}
	case SizingModeFixed:
		if c.FixedAmount.IsNone() {
			return errors.New(errors.ErrCodeInvalidSizing, "fixed mode requires a fixed amount")
		}

		amount := c.FixedAmount.Unwrap()
		if amount < 1.0 {
			return errors.Newf(errors.ErrCodeInvalidSizing, "fixed amount must be at least $1.00, got %v", amount)
		}
	}

	return nil
}
