// Package arbitrage detects cross-platform price divergence on unified
// markets and emits ranked opportunities with actionable instructions.
package arbitrage

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Config configures the detector.
type Config struct {
	// MinProfitPct is the fee-buffer threshold in percentage points. A
	// spread must exceed it strictly: platform fees typically consume
	// 1-2%, so a gap of exactly the threshold is not an opportunity.
	MinProfitPct float64
}

// Detector scans unified markets for same-outcome price divergence. Detect
// is pure and idempotent: identical input yields identical output (modulo
// the generated opportunity ID), performs no I/O, and malformed input yields
// "no opportunity" rather than an error.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Detector.
func New(cfg Config, logger *slog.Logger) *Detector {
	if cfg.MinProfitPct == 0 {
		cfg.MinProfitPct = 2.0
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
}

// Detect computes the opportunity for one unified market. Markets with
// fewer than two platform entries, or with missing outcome prices, yield
// Exists=false.
func (d *Detector) Detect(um domain.UnifiedMarket) domain.ArbitrageOpportunity {
	opp := domain.ArbitrageOpportunity{
		UnifiedID:  um.UnifiedID,
		Question:   um.CanonicalQuestion,
		DetectedAt: um.UpdatedAt,
	}
	if len(um.Platforms) < 2 {
		return opp
	}

	// Same-outcome divergence on YES: buy where cheapest, hedge where
	// priciest.
	var (
		minYes, maxYes   float64
		minPlat, maxPlat domain.Platform
		have             bool
	)
	plats := make([]domain.Platform, 0, len(um.Platforms))
	for p := range um.Platforms {
		plats = append(plats, p)
	}
	sort.Slice(plats, func(i, j int) bool { return plats[i] < plats[j] })

	for _, p := range plats {
		yes, ok := um.Platforms[p].YesPrice()
		if !ok {
			continue
		}
		if !have {
			minYes, maxYes = yes, yes
			minPlat, maxPlat = p, p
			have = true
			continue
		}
		if yes < minYes {
			minYes, minPlat = yes, p
		}
		if yes > maxYes {
			maxYes, maxPlat = yes, p
		}
	}
	if !have || minPlat == maxPlat {
		return opp
	}

	profitPct := (maxYes - minYes) * 100
	opp.ProfitPct = profitPct
	if profitPct <= d.cfg.MinProfitPct {
		return opp
	}

	opp.ID = uuid.New().String()
	opp.Exists = true
	opp.BuyPlatform = minPlat
	opp.SellPlatform = maxPlat
	opp.Instructions = []domain.ArbInstruction{
		{
			Step:     1,
			Action:   "buy",
			Outcome:  "Yes",
			Platform: minPlat,
			Price:    minYes,
			Detail:   fmt.Sprintf("buy YES on %s at %.2f", minPlat, minYes),
		},
		{
			Step:     2,
			Action:   "sell",
			Outcome:  "Yes",
			Platform: maxPlat,
			Price:    maxYes,
			Detail:   fmt.Sprintf("sell/hedge YES on %s at %.2f for a %.1f%% pre-fee spread", maxPlat, maxYes, profitPct),
		},
	}

	d.logger.Debug("arbitrage opportunity detected",
		slog.String("unified_id", um.UnifiedID),
		slog.Float64("profit_pct", profitPct),
		slog.String("buy", string(minPlat)),
		slog.String("sell", string(maxPlat)),
	)
	return opp
}

// DetectAll runs Detect over a set of unified markets and returns existing
// opportunities sorted by descending profit.
func (d *Detector) DetectAll(markets []domain.UnifiedMarket) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for i := range markets {
		if opp := d.Detect(markets[i]); opp.Exists {
			out = append(out, opp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfitPct > out[j].ProfitPct })
	return out
}
