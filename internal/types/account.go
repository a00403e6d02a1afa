package types

// AccountInfo represents the broker account state used by the safety gate.
type AccountInfo struct {
	// Cash is the current cash balance (excluding unrealized P&L)
	Cash float64 `json:"cash" yaml:"cash"`
	// PortfolioValue is the total account value including positions
	PortfolioValue float64 `json:"portfolio_value" yaml:"portfolio_value"`
	// Equity is the total account value (cash + unrealized P&L)
	Equity float64 `json:"equity" yaml:"equity"`
	// BuyingPower is the available amount for new purchases
	BuyingPower float64 `json:"buying_power" yaml:"buying_power"`
	// PaperTrading is true for simulated accounts; PDT rules do not apply
	PaperTrading bool `json:"paper_trading" yaml:"paper_trading"`
}
