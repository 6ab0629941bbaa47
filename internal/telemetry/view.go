package telemetry

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/claudeusage/internal/usage"
)

// Reader turns stored telemetry rows into the same snapshot shape the
// file-based engine produces. Telemetry has no notion of projects, so the
// project list stays empty and per-project fields zero.
type Reader struct {
	store *Store
	now   func() time.Time
}

// NewReader builds a read model over a store.
func NewReader(store *Store) *Reader {
	return &Reader{store: store, now: time.Now}
}

// Snapshot aggregates all stored rows in the given range. Zero bounds are
// open.
func (r *Reader) Snapshot(ctx context.Context, start, end time.Time) (usage.Snapshot, error) {
	metrics, err := r.store.MetricsByPrefix(ctx, MetricPrefix, start, end)
	if err != nil {
		return usage.Snapshot{}, err
	}
	events, err := r.store.EventsByPrefix(ctx, MetricPrefix, start, end)
	if err != nil {
		return usage.Snapshot{}, err
	}

	now := r.now()
	overall := usage.OverallStats{}
	models := make(map[string]*usage.ModelStats)
	daily := make(map[string]*usage.DailyUsage)

	dailyFor := func(ns int64) *usage.DailyUsage {
		date := localDate(ns)
		d, ok := daily[date]
		if !ok {
			d = &usage.DailyUsage{Date: date}
			daily[date] = d
		}
		return d
	}
	modelFor := func(attrs map[string]string) *usage.ModelStats {
		name := attrs["model"]
		if name == "" {
			name = "unknown"
		}
		m, ok := models[name]
		if !ok {
			m = &usage.ModelStats{Model: name}
			models[name] = m
		}
		return m
	}

	for _, metric := range metrics {
		switch metric.Name {
		case MetricTokenUsage:
			value := int64(metric.Value)
			m := modelFor(metric.Attributes)
			d := dailyFor(metric.TimestampNS)

			switch metric.Attributes["type"] {
			case "input":
				overall.TotalInputTokens += value
				m.InputTokens += value
				d.InputTokens += value
			case "output":
				overall.TotalOutputTokens += value
				m.OutputTokens += value
				d.OutputTokens += value
			case "cacheRead":
				overall.CacheReadTokens += value
				m.CacheReadTokens += value
				d.CacheReadTokens += value
			case "cacheCreation":
				overall.CacheCreationTokens += value
				m.CacheCreationTokens += value
				d.CacheCreationTokens += value
			}
			m.TotalTokens = m.InputTokens + m.OutputTokens

		case MetricCostUsage:
			overall.TotalCostUSD += metric.Value
			modelFor(metric.Attributes).CostUSD += metric.Value
			dailyFor(metric.TimestampNS).CostUSD += metric.Value

		case MetricSessionCount:
			overall.TotalSessions += int(metric.Value)
		}
	}

	for _, event := range events {
		if event.Name != EventAPIRequest {
			continue
		}
		overall.TotalMessages++
		dailyFor(event.TimestampNS).MessageCount++
	}

	overall.TotalCostUSD = round6(overall.TotalCostUSD)

	totalTokens := overall.TotalInputTokens + overall.TotalOutputTokens
	distribution := lo.Map(lo.Values(models), func(m *usage.ModelStats, _ int) usage.ModelStats {
		if totalTokens > 0 {
			m.Percentage = math.Round(float64(m.TotalTokens)/float64(totalTokens)*100*100) / 100
		}
		m.CostUSD = round6(m.CostUSD)
		// Per-model message counts are not exported; the global count is
		// the best available approximation.
		m.MessageCount = overall.TotalMessages
		return *m
	})
	sort.Slice(distribution, func(i, j int) bool {
		if distribution[i].TotalTokens != distribution[j].TotalTokens {
			return distribution[i].TotalTokens > distribution[j].TotalTokens
		}
		return distribution[i].Model < distribution[j].Model
	})
	overall.ModelDistribution = distribution

	dailyList := lo.Map(lo.Values(daily), func(d *usage.DailyUsage, _ int) usage.DailyUsage {
		d.CostUSD = round6(d.CostUSD)
		return *d
	})
	sort.Slice(dailyList, func(i, j int) bool { return dailyList[i].Date < dailyList[j].Date })

	today := now.Local().Format("2006-01-02")
	for _, d := range dailyList {
		if d.Date == today {
			overall.TodayStats = usage.TodayStats{
				InputTokens:  d.InputTokens,
				OutputTokens: d.OutputTokens,
				TotalTokens:  d.InputTokens + d.OutputTokens,
				CostUSD:      d.CostUSD,
				MessageCount: d.MessageCount,
			}
		}
	}

	overall.BurnRate = burnRateFromMetrics(metrics, now)

	return usage.Snapshot{
		DailyUsage:   dailyList,
		OverallStats: overall,
		GeneratedAt:  now,
	}, nil
}

// burnRateFromMetrics rates the trailing hour of raw metrics. The span
// between the first and last recent sample is clamped to [1, 60] minutes
// so a burst of points does not explode the extrapolation.
func burnRateFromMetrics(metrics []Metric, now time.Time) *usage.BurnRate {
	cutoff := now.Add(-time.Hour).UnixNano()

	var tokens int64
	var cost float64
	var earliest, latest int64
	seen := false

	for _, m := range metrics {
		if m.TimestampNS < cutoff {
			continue
		}
		if !seen || m.TimestampNS < earliest {
			earliest = m.TimestampNS
		}
		if !seen || m.TimestampNS > latest {
			latest = m.TimestampNS
		}
		seen = true

		switch m.Name {
		case MetricTokenUsage:
			t := m.Attributes["type"]
			if t == "input" || t == "output" {
				tokens += int64(m.Value)
			}
		case MetricCostUsage:
			cost += m.Value
		}
	}

	if !seen || tokens == 0 {
		return nil
	}

	spanMinutes := float64(latest-earliest) / float64(time.Minute)
	spanMinutes = math.Max(1, math.Min(60, spanMinutes))

	return &usage.BurnRate{
		TokensPerMinute: math.Round(float64(tokens)/spanMinutes*100) / 100,
		CostPerHour:     math.Round(cost/spanMinutes*60*10000) / 10000,
	}
}

func localDate(ns int64) string {
	return time.Unix(0, ns).Local().Format("2006-01-02")
}

func round6(v float64) float64 {
	return math.Round(v*1_000_000) / 1_000_000
}
