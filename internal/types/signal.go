package types

import "time"

// Decision is a strategy's verdict for one instrument.
type Decision string

const (
	// DecisionBuy tells the executor to open or add to a long position
	DecisionBuy Decision = "buy"
	// DecisionSell tells the executor to sell or open a short position
	DecisionSell Decision = "sell"
	// DecisionHold tells the executor to take no action
	DecisionHold Decision = "hold"
)

// IsActionable reports whether the decision requires the executor to do anything.
func (d Decision) IsActionable() bool {
	return d == DecisionBuy || d == DecisionSell
}

// Signal is one strategy's verdict for one instrument, written once per
// poll cycle to signal:<symbol> and superseded by the next cycle.
type Signal struct {
	// Symbol is the instrument the signal applies to (e.g. BTC/USD)
	Symbol string `json:"symbol" yaml:"symbol" validate:"required"`
	// Decision is the verdict: buy, sell or hold
	Decision Decision `json:"decision" yaml:"decision" validate:"required,oneof=buy sell hold"`
	// Confidence is the strategy's confidence in the decision, in [0, 1]
	Confidence float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
	// Strategy is the id of the strategy that produced the signal
	Strategy string `json:"strategy" yaml:"strategy"`
	// Timestamp is when the signal was produced
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
