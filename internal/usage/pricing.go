package usage

import (
	"math"
	"strings"
)

// ModelPricing holds per-million-token rates in USD.
type ModelPricing struct {
	Input         float64
	Output        float64
	CacheCreation float64
	CacheRead     float64
}

// Pricing resolves model names to rate cards and computes event costs.
type Pricing struct {
	rates    map[string]ModelPricing
	fallback ModelPricing
}

// NewPricing builds the rate table. Unknown models fall back to sonnet
// rates.
func NewPricing() *Pricing {
	opus := ModelPricing{Input: 15.0, Output: 75.0, CacheCreation: 18.75, CacheRead: 1.5}
	sonnet := ModelPricing{Input: 3.0, Output: 15.0, CacheCreation: 3.75, CacheRead: 0.3}
	haiku := ModelPricing{Input: 0.25, Output: 1.25, CacheCreation: 0.3, CacheRead: 0.03}

	return &Pricing{
		rates: map[string]ModelPricing{
			"claude-opus-4":     opus,
			"claude-3-opus":     opus,
			"claude-sonnet-4":   sonnet,
			"claude-3-5-sonnet": sonnet,
			"claude-3-sonnet":   sonnet,
			"claude-3-5-haiku":  haiku,
			"claude-3-haiku":    haiku,
		},
		fallback: sonnet,
	}
}

// NormalizeModel maps any model identifier onto a pricing family key.
// Generation 4 checks run before the generic family checks so that
// "claude-opus-4-20250514" does not land in the legacy opus bucket.
func NormalizeModel(model string) string {
	m := strings.ToLower(model)

	if strings.Contains(m, "opus-4") {
		return "claude-opus-4"
	}
	if strings.Contains(m, "sonnet-4") {
		return "claude-sonnet-4"
	}

	if strings.Contains(m, "opus") {
		return "claude-3-opus"
	}
	if strings.Contains(m, "haiku") {
		if strings.Contains(m, "3.5") || strings.Contains(m, "3-5") {
			return "claude-3-5-haiku"
		}
		return "claude-3-haiku"
	}
	if strings.Contains(m, "sonnet") {
		if strings.Contains(m, "3.5") || strings.Contains(m, "3-5") {
			return "claude-3-5-sonnet"
		}
		return "claude-3-sonnet"
	}

	return "claude-3-5-sonnet"
}

func (p *Pricing) ratesFor(model string) ModelPricing {
	if r, ok := p.rates[NormalizeModel(model)]; ok {
		return r
	}
	return p.fallback
}

// Cost prices the four token counters of one event and rounds to six
// decimal places.
func (p *Pricing) Cost(model string, input, output, cacheCreation, cacheRead int64) float64 {
	r := p.ratesFor(model)
	cost := float64(input)/1_000_000*r.Input +
		float64(output)/1_000_000*r.Output +
		float64(cacheCreation)/1_000_000*r.CacheCreation +
		float64(cacheRead)/1_000_000*r.CacheRead
	return roundUSD(cost)
}

// roundUSD rounds to six decimal places. Applied at every aggregation
// boundary, never deferred to presentation.
func roundUSD(v float64) float64 {
	return math.Round(v*1_000_000) / 1_000_000
}

// PlanLimits are the soft quota ceilings of a subscription tier.
type PlanLimits struct {
	TokenLimit   int64   `json:"tokenLimit"`
	CostLimit    float64 `json:"costLimit"`
	MessageLimit int     `json:"messageLimit"`
}

// LimitsForPlan returns the ceilings for a plan type. Unknown plans get
// the pro tier.
func LimitsForPlan(planType string) PlanLimits {
	switch strings.ToLower(planType) {
	case "max5":
		return PlanLimits{TokenLimit: 88_000, CostLimit: 35.0, MessageLimit: 1_000}
	case "max20":
		return PlanLimits{TokenLimit: 220_000, CostLimit: 140.0, MessageLimit: 2_000}
	default:
		return PlanLimits{TokenLimit: 19_000, CostLimit: 18.0, MessageLimit: 250}
	}
}
