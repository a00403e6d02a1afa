package collector

import (
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// DefaultRSIPeriod is the standard 14-bar RSI lookback.
const DefaultRSIPeriod = 14

// RSICalculator computes a streaming RSI with Wilder smoothing. Feed it
// closes in chronological order; it needs period+1 closes before it
// produces a value.
type RSICalculator struct {
	period    int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	count     int
}

// NewRSICalculator creates a calculator for the given period.
func NewRSICalculator(period int) (*RSICalculator, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "rsi period must be positive, got %d", period)
	}

	return &RSICalculator{period: period}, nil
}

// Update feeds one close. ok is false until enough closes have been seen.
func (c *RSICalculator) Update(close float64) (value float64, ok bool) {
	if c.count == 0 {
		c.prevClose = close
		c.count++

		return 0, false
	}

	change := close - c.prevClose
	c.prevClose = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if c.count <= c.period {
		// Seed phase: simple average over the first period changes.
		c.avgGain += gain / float64(c.period)
		c.avgLoss += loss / float64(c.period)
	} else {
		// Wilder smoothing.
		c.avgGain = (c.avgGain*float64(c.period-1) + gain) / float64(c.period)
		c.avgLoss = (c.avgLoss*float64(c.period-1) + loss) / float64(c.period)
	}

	c.count++

	if c.count <= c.period {
		return 0, false
	}

	return c.Value(), true
}

// Value returns the current RSI. Only meaningful once Update has
// returned ok.
func (c *RSICalculator) Value() float64 {
	if c.avgLoss == 0 {
		if c.avgGain == 0 {
			return 50
		}

		return 100
	}

	rs := c.avgGain / c.avgLoss

	return 100 - 100/(1+rs)
}

// Ready reports whether enough closes have been seen to produce a value.
func (c *RSICalculator) Ready() bool {
	return c.count > c.period
}
