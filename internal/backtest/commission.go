package backtest

// CommissionModel computes the fee charged for one fill.
type CommissionModel interface {
	Calculate(quantity, price float64) float64
}

// ZeroCommission charges nothing. Default for crypto venue simulations.
type ZeroCommission struct{}

// NewZeroCommission creates a commission model that always returns zero.
func NewZeroCommission() CommissionModel {
	return &ZeroCommission{}
}

func (c *ZeroCommission) Calculate(quantity, price float64) float64 {
	return 0
}

// PerShareCommission charges a per-unit fee with a per-order minimum,
// the way retail equity brokers price fills.
type PerShareCommission struct {
	perShare float64
	minimum  float64
}

// NewPerShareCommission creates a per-unit commission model.
func NewPerShareCommission(perShare, minimum float64) CommissionModel {
	return &PerShareCommission{perShare: perShare, minimum: minimum}
}

func (c *PerShareCommission) Calculate(quantity, price float64) float64 {
	fee := c.perShare * quantity
	if fee < c.minimum {
		return c.minimum
	}

	return fee
}

var (
	_ CommissionModel = (*ZeroCommission)(nil)
	_ CommissionModel = (*PerShareCommission)(nil)
)
