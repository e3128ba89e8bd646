package pricing

import (
	"math"

	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/marketplace"
)

type Config struct {
	// GapCeilingPercent rejects deal prices whose discount relative to
	// the original is implausibly deep.
	GapCeilingPercent float64
	// PercentBandMin/Max bound the percentage-hint fallback.
	PercentBandMin float64
	PercentBandMax float64
}

func DefaultConfig() Config {
	return Config{GapCeilingPercent: 70, PercentBandMin: 5, PercentBandMax: 40}
}

// Resolution is the outcome of price derivation. Nil TargetPrice means the
// item cannot be safely priced and must not be mutated.
type Resolution struct {
	TargetPrice    *float64
	DerivedPercent *float64
}

// Resolve derives a target price from whichever upstream fields happen to
// be populated. Pure function: same item in, same resolution out.
//
// Tiers, first match wins:
//  1. explicit deal price, when plausible
//  2. policy-ordered suggested/min/max price, first plausible
//  3. percentage hint within the configured band
func Resolve(it marketplace.Item, policy domain.PricePolicy, cfg Config) Resolution {
	if it.OriginalPrice <= 0 {
		return Resolution{}
	}
	if plausible(it.CurrentPrice, it.OriginalPrice, cfg) {
		return resolved(*it.CurrentPrice, it.OriginalPrice)
	}
	for _, p := range policyOrder(it, policy) {
		if plausible(p, it.OriginalPrice, cfg) {
			return resolved(*p, it.OriginalPrice)
		}
	}
	if h := it.PercentHint; h != nil && *h >= cfg.PercentBandMin && *h <= cfg.PercentBandMax {
		return resolved(it.OriginalPrice*(1-*h/100), it.OriginalPrice)
	}
	return Resolution{}
}

// policyOrder puts the policy's preferred field first, then the remaining
// candidates in the canonical suggested, min, max order.
func policyOrder(it marketplace.Item, policy domain.PricePolicy) []*float64 {
	switch policy {
	case domain.PriceMin:
		return []*float64{it.MinPrice, it.SuggestedPrice, it.MaxPrice}
	case domain.PriceMax:
		return []*float64{it.MaxPrice, it.SuggestedPrice, it.MinPrice}
	default:
		return []*float64{it.SuggestedPrice, it.MinPrice, it.MaxPrice}
	}
}

func plausible(p *float64, original float64, cfg Config) bool {
	if p == nil || *p <= 0 || *p >= original {
		return false
	}
	gap := 100 * (1 - *p/original)
	return gap < cfg.GapCeilingPercent
}

func resolved(target, original float64) Resolution {
	pct := 100 * (1 - target/original)
	pct = math.Max(0, math.Min(100, pct))
	return Resolution{TargetPrice: &target, DerivedPercent: &pct}
}

// Eligible applies the job's filter spec to one item. The three predicates
// are independent; any failing one excludes the item. When the derived
// percent ceiling is active an unresolvable item is excluded.
func Eligible(it marketplace.Item, spec domain.FilterSpec, res Resolution) bool {
	if spec.ExactID != nil && *spec.ExactID != it.ID {
		return false
	}
	if spec.Status != nil && *spec.Status != it.Status {
		return false
	}
	if spec.MaxDerivedPercent != nil {
		if res.DerivedPercent == nil {
			return false
		}
		if *res.DerivedPercent > *spec.MaxDerivedPercent {
			return false
		}
	}
	return true
}
