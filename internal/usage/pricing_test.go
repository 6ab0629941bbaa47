package usage

import (
	"math"
	"testing"
)

func TestCost_SonnetRates(t *testing.T) {
	p := NewPricing()
	cost := p.Cost("claude-3-5-sonnet", 1_000_000, 1_000_000, 0, 0)
	if math.Abs(cost-18.0) > 0.000001 {
		t.Fatalf("expected 18.0, got %v", cost)
	}
}

func TestCost_CacheTokens(t *testing.T) {
	p := NewPricing()
	cost := p.Cost("claude-opus-4-20250514", 0, 0, 1_000_000, 1_000_000)
	if math.Abs(cost-20.25) > 0.000001 {
		t.Fatalf("expected 20.25, got %v", cost)
	}
}

func TestCost_Rounding(t *testing.T) {
	p := NewPricing()
	cost := p.Cost("claude-3-5-sonnet", 1, 1, 0, 0)
	// 0.000003 + 0.000015 = 0.000018, already at six decimals
	if cost != 0.000018 {
		t.Fatalf("expected 0.000018, got %v", cost)
	}
}

func TestNormalizeModel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"claude-3-5-sonnet-20240620", "claude-3-5-sonnet"},
		{"Claude 3 Opus", "claude-3-opus"},
		{"claude-opus-4-20250514", "claude-opus-4"},
		{"claude-sonnet-4-20250514", "claude-sonnet-4"},
		{"claude-3-5-haiku-20241022", "claude-3-5-haiku"},
		{"claude-3-haiku-20240307", "claude-3-haiku"},
		{"claude-3-sonnet-20240229", "claude-3-sonnet"},
		{"something-else", "claude-3-5-sonnet"},
	}
	for _, tc := range cases {
		if got := NormalizeModel(tc.in); got != tc.want {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCost_UnknownModelUsesSonnetRates(t *testing.T) {
	p := NewPricing()
	unknown := p.Cost("mystery-model", 1_000_000, 0, 0, 0)
	sonnet := p.Cost("claude-3-5-sonnet", 1_000_000, 0, 0, 0)
	if unknown != sonnet {
		t.Fatalf("unknown model cost %v, sonnet cost %v", unknown, sonnet)
	}
}

func TestLimitsForPlan(t *testing.T) {
	cases := []struct {
		plan   string
		tokens int64
	}{
		{"pro", 19_000},
		{"MAX5", 88_000},
		{"max20", 220_000},
		{"enterprise", 19_000},
	}
	for _, tc := range cases {
		if got := LimitsForPlan(tc.plan); got.TokenLimit != tc.tokens {
			t.Errorf("LimitsForPlan(%q).TokenLimit = %d, want %d", tc.plan, got.TokenLimit, tc.tokens)
		}
	}
}
