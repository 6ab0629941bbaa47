package usage

import (
	"testing"
	"time"
)

func entryAt(ts time.Time, input, output int64, cost float64) Entry {
	return Entry{
		Timestamp:    ts,
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  input,
		OutputTokens: output,
		CostUSD:      cost,
	}
}

func TestBuildBlocks_SplitsAtFiveHours(t *testing.T) {
	now := time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC), 100, 50, 0.1),
		entryAt(time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), 200, 100, 0.2),
		entryAt(time.Date(2025, 6, 1, 15, 20, 0, 0, time.UTC), 10, 5, 0.05),
	}

	blocks := BuildBlocks(entries, now)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}

	first := blocks[0]
	if !first.StartTime.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("block start not floored to hour: %v", first.StartTime)
	}
	if first.TotalTokens != 450 {
		t.Errorf("block total should be input+output only, got %d", first.TotalTokens)
	}
	if !first.ActualEnd.Equal(entries[1].Timestamp) {
		t.Errorf("actual end should track last entry, got %v", first.ActualEnd)
	}
	if first.IsActive {
		t.Error("block ending at 15:00 should be inactive at 16:00")
	}

	second := blocks[1]
	if !second.StartTime.Equal(time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("second block start: %v", second.StartTime)
	}
	if !second.IsActive {
		t.Error("block ending at 20:00 should be active at 16:00")
	}
}

func TestBuildBlocks_CacheTokensExcluded(t *testing.T) {
	now := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	e := entryAt(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), 10, 20, 0)
	e.CacheCreationTokens = 1000
	e.CacheReadTokens = 2000

	blocks := BuildBlocks([]Entry{e}, now)
	if blocks[0].TotalTokens != 30 {
		t.Fatalf("cache tokens leaked into block total: %d", blocks[0].TotalTokens)
	}
}

func TestBuildBlocks_Empty(t *testing.T) {
	if got := BuildBlocks(nil, time.Now()); got != nil {
		t.Fatalf("expected nil for no entries, got %v", got)
	}
}

func TestHourlyBurnRate_FullOverlap(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), 300, 0, 3.0),
		entryAt(time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC), 0, 300, 3.0),
	}
	blocks := BuildBlocks(entries, now)

	tokensPerMin, costPerHour := HourlyBurnRate(blocks, now)
	if tokensPerMin != 10.0 {
		t.Errorf("expected 10 tokens/min, got %v", tokensPerMin)
	}
	if costPerHour != 6.0 {
		t.Errorf("expected 6.0 cost/hour, got %v", costPerHour)
	}
}

func TestHourlyBurnRate_ProportionalOverlap(t *testing.T) {
	// Active block spanning 13:00..14:30 with a 14:30 clock: 60 of its 90
	// minutes fall inside the window, so two thirds of its tokens count.
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(time.Date(2025, 6, 1, 13, 30, 0, 0, time.UTC), 900, 0, 9.0),
	}
	blocks := BuildBlocks(entries, now)

	tokensPerMin, costPerHour := HourlyBurnRate(blocks, now)
	if tokensPerMin != 10.0 {
		t.Errorf("expected 10 tokens/min, got %v", tokensPerMin)
	}
	if costPerHour != 6.0 {
		t.Errorf("expected 6.0 cost/hour, got %v", costPerHour)
	}
}

func TestHourlyBurnRate_NoRecentActivity(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), 500, 500, 5.0),
	}
	blocks := BuildBlocks(entries, now)

	tokensPerMin, costPerHour := HourlyBurnRate(blocks, now)
	if tokensPerMin != 0 || costPerHour != 0 {
		t.Fatalf("expected no signal, got %v tokens/min %v cost/hour", tokensPerMin, costPerHour)
	}
}

func TestSessionStart(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt(time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC), 1, 1, 0),  // outside window
		entryAt(time.Date(2025, 6, 1, 11, 45, 0, 0, time.UTC), 1, 1, 0),
		entryAt(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), 1, 1, 0),
	}

	start := SessionStart(entries, now)
	if start == nil {
		t.Fatal("expected session start")
	}
	if !start.Equal(time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 11:00, got %v", start)
	}

	if got := SessionStart(entries[:1], now); got != nil {
		t.Fatalf("entries outside window should yield nil, got %v", got)
	}
}

func TestTimeToReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	at := func(t time.Time) *time.Time { return &t }

	cases := []struct {
		name  string
		start *time.Time
		want  int
	}{
		{"no session", nil, 300},
		{"half hour in", at(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), 270},
		{"exactly one window", at(time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC)), 300},
		{"future start", at(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)), 300},
	}
	for _, tc := range cases {
		if got := TimeToReset(tc.start, now); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}
