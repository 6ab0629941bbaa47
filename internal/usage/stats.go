package usage

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// FilterOptions narrows an aggregation to a date range or a single project.
// Zero value means no filtering.
type FilterOptions struct {
	StartDate   *time.Time
	EndDate     *time.Time
	ProjectPath string
}

// Matches reports whether an entry from the given project passes the
// filter. Date bounds are inclusive.
func (f FilterOptions) Matches(e Entry, projectPath string) bool {
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.ProjectPath != "" && projectPath != f.ProjectPath {
		return false
	}
	return true
}

// GroupModelName maps a model identifier onto its reporting bucket.
// Generation 4 names stay verbatim (lowercased) so new point releases get
// their own rows; legacy names fold into family buckets. Unrecognized
// names pass through unchanged.
func GroupModelName(model string) string {
	m := strings.ToLower(model)

	for _, marker := range []string{"opus-4-", "sonnet-4-", "haiku-4-"} {
		if strings.Contains(m, marker) {
			return m
		}
	}

	if strings.Contains(m, "opus") {
		if strings.Contains(m, "4-") {
			return m
		}
		return "claude-3-opus"
	}
	if strings.Contains(m, "sonnet") {
		if strings.Contains(m, "4-") {
			return m
		}
		if strings.Contains(m, "3.5") || strings.Contains(m, "3-5") {
			return "claude-3-5-sonnet"
		}
		return "claude-3-sonnet"
	}
	if strings.Contains(m, "haiku") {
		if strings.Contains(m, "3.5") || strings.Contains(m, "3-5") {
			return "claude-3-5-haiku"
		}
		return "claude-3-haiku"
	}

	return model
}

// ModelDistribution aggregates entries per model bucket, sorted by total
// tokens descending. Percentages are shares of input+output tokens,
// rounded to two decimal places.
func ModelDistribution(entries []Entry) []ModelStats {
	byModel := make(map[string]*ModelStats)
	var totalTokens int64

	for _, e := range entries {
		key := GroupModelName(e.Model)
		entryTotal := e.InputTokens + e.OutputTokens
		totalTokens += entryTotal

		stats, ok := byModel[key]
		if !ok {
			stats = &ModelStats{Model: key}
			byModel[key] = stats
		}
		stats.InputTokens += e.InputTokens
		stats.OutputTokens += e.OutputTokens
		stats.CacheCreationTokens += e.CacheCreationTokens
		stats.CacheReadTokens += e.CacheReadTokens
		stats.TotalTokens += entryTotal
		stats.CostUSD += e.CostUSD
		stats.MessageCount++
	}

	list := lo.Map(lo.Values(byModel), func(m *ModelStats, _ int) ModelStats {
		if totalTokens > 0 {
			m.Percentage = round2(float64(m.TotalTokens) / float64(totalTokens) * 100)
		}
		m.CostUSD = roundUSD(m.CostUSD)
		return *m
	})

	sort.Slice(list, func(i, j int) bool {
		if list[i].TotalTokens != list[j].TotalTokens {
			return list[i].TotalTokens > list[j].TotalTokens
		}
		return list[i].Model < list[j].Model
	})
	return list
}

// ProjectStatsFor sums a project's entries. Session count is the number of
// session files, not distinct sessions seen in the data.
func ProjectStatsFor(project Project, entries []Entry) ProjectStats {
	stats := ProjectStats{
		ProjectPath:  project.DecodedPath,
		DisplayName:  project.DisplayName,
		SessionCount: len(project.SessionFiles),
	}

	for _, e := range entries {
		stats.TotalInputTokens += e.InputTokens
		stats.TotalOutputTokens += e.OutputTokens
		stats.CacheCreationTokens += e.CacheCreationTokens
		stats.CacheReadTokens += e.CacheReadTokens
		stats.TotalCostUSD += e.CostUSD
		stats.MessageCount++

		ts := e.Timestamp.Format(time.RFC3339)
		if stats.FirstActivity == "" || ts < stats.FirstActivity {
			stats.FirstActivity = ts
		}
		if stats.LastActivity == "" || ts > stats.LastActivity {
			stats.LastActivity = ts
		}
	}

	stats.TotalCostUSD = roundUSD(stats.TotalCostUSD)
	return stats
}

// DailyUsageFor buckets entries by UTC calendar day, ascending.
func DailyUsageFor(entries []Entry) []DailyUsage {
	byDate := make(map[string]*DailyUsage)

	for _, e := range entries {
		key := e.Timestamp.UTC().Format("2006-01-02")
		daily, ok := byDate[key]
		if !ok {
			daily = &DailyUsage{Date: key}
			byDate[key] = daily
		}
		daily.InputTokens += e.InputTokens
		daily.OutputTokens += e.OutputTokens
		daily.CacheCreationTokens += e.CacheCreationTokens
		daily.CacheReadTokens += e.CacheReadTokens
		daily.CostUSD += e.CostUSD
		daily.MessageCount++
	}

	list := lo.Map(lo.Values(byDate), func(d *DailyUsage, _ int) DailyUsage {
		d.CostUSD = roundUSD(d.CostUSD)
		return *d
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Date < list[j].Date })
	return list
}

// OverallStatsFor sums per-project aggregates, so rounding already applied
// at the project boundary flows into the totals. Session timing and burn
// rate come from the flat entry list.
func OverallStatsFor(projects []ProjectStats, allEntries []Entry, now time.Time) OverallStats {
	stats := OverallStats{ProjectCount: len(projects)}

	for _, p := range projects {
		stats.TotalInputTokens += p.TotalInputTokens
		stats.TotalOutputTokens += p.TotalOutputTokens
		stats.CacheCreationTokens += p.CacheCreationTokens
		stats.CacheReadTokens += p.CacheReadTokens
		stats.TotalCostUSD += p.TotalCostUSD
		stats.TotalMessages += p.MessageCount
		stats.TotalSessions += p.SessionCount
	}
	stats.TotalCostUSD = roundUSD(stats.TotalCostUSD)

	stats.ModelDistribution = ModelDistribution(allEntries)

	stats.SessionStartTime = SessionStart(allEntries, now)
	stats.TimeToResetMinutes = TimeToReset(stats.SessionStartTime, now)

	if len(allEntries) > 0 {
		blocks := BuildBlocks(allEntries, now)
		tokensPerMin, costPerHour := HourlyBurnRate(blocks, now)
		if tokensPerMin > 0 {
			stats.BurnRate = &BurnRate{
				TokensPerMinute: round2(tokensPerMin),
				CostPerHour:     round4(costPerHour),
			}
		}
	}

	return stats
}

// ProjectUsage aggregates a single project selected by decoded path.
func ProjectUsage(data []ProjectEntries, projectPath string, now time.Time) Snapshot {
	return BuildSnapshot(data, FilterOptions{ProjectPath: projectPath}, now)
}

// DailyRange is the daily series restricted to an inclusive date range.
func DailyRange(entries []Entry, start, end time.Time) []DailyUsage {
	f := FilterOptions{StartDate: &start, EndDate: &end}
	return DailyUsageFor(lo.Filter(entries, func(e Entry, _ int) bool {
		return f.Matches(e, "")
	}))
}

// ProjectEntries pairs a project descriptor with its deduplicated entries.
type ProjectEntries struct {
	Project Project
	Entries []Entry
}

// BuildSnapshot aggregates everything into one snapshot. Projects with no
// matching entries are dropped; the rest sort by last activity, most
// recent first.
func BuildSnapshot(data []ProjectEntries, filter FilterOptions, now time.Time) Snapshot {
	var allEntries []Entry
	var projects []ProjectStats

	for _, pe := range data {
		filtered := lo.Filter(pe.Entries, func(e Entry, _ int) bool {
			return filter.Matches(e, pe.Project.DecodedPath)
		})
		if len(filtered) == 0 {
			continue
		}
		allEntries = append(allEntries, filtered...)
		projects = append(projects, ProjectStatsFor(pe.Project, filtered))
	}

	sort.Slice(allEntries, func(i, j int) bool {
		return allEntries[i].Timestamp.Before(allEntries[j].Timestamp)
	})

	daily := DailyUsageFor(allEntries)
	overall := OverallStatsFor(projects, allEntries, now)
	overall.TodayStats = todayStatsFor(allEntries, now)

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].LastActivity > projects[j].LastActivity
	})

	return Snapshot{
		Projects:     projects,
		DailyUsage:   daily,
		OverallStats: overall,
		GeneratedAt:  now,
	}
}

// todayStatsFor sums entries falling on the local calendar date. The daily
// series keys on UTC days; "today" deliberately follows the user's wall
// clock instead.
func todayStatsFor(entries []Entry, now time.Time) TodayStats {
	today := now.Local().Format("2006-01-02")
	var stats TodayStats
	for _, e := range entries {
		if e.Timestamp.Local().Format("2006-01-02") != today {
			continue
		}
		stats.InputTokens += e.InputTokens
		stats.OutputTokens += e.OutputTokens
		stats.CostUSD += e.CostUSD
		stats.MessageCount++
	}
	stats.TotalTokens = stats.InputTokens + stats.OutputTokens
	stats.CostUSD = roundUSD(stats.CostUSD)
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
