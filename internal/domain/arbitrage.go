package domain

import "time"

// ArbInstruction is one numbered step of an arbitrage execution plan.
type ArbInstruction struct {
	Step     int      `json:"step"`
	Action   string   `json:"action"` // "buy" or "sell"
	Outcome  string   `json:"outcome"`
	Platform Platform `json:"platform"`
	Price    float64  `json:"price"`
	Detail   string   `json:"detail"`
}

// ArbitrageOpportunity is a detected same-outcome price divergence across
// platforms exceeding the fee-buffer threshold. Opportunities are derived
// fresh on every aggregation cycle and never patched incrementally.
type ArbitrageOpportunity struct {
	ID           string           `json:"id"`
	UnifiedID    string           `json:"unified_id"`
	Question     string           `json:"question"`
	Exists       bool             `json:"exists"`
	ProfitPct    float64          `json:"profit_pct"` // pre-fee
	BuyPlatform  Platform         `json:"buy_platform"`
	SellPlatform Platform         `json:"sell_platform"`
	Instructions []ArbInstruction `json:"instructions,omitempty"`
	DetectedAt   time.Time        `json:"detected_at"`
}
