package usage

import "time"

// SessionDuration is the width of one billing window.
const SessionDuration = 5 * time.Hour

// BuildBlocks folds time-ordered entries into 5-hour billing windows. A
// block opens at the hour boundary at or before its first entry; an entry
// at or past the block's end opens a new one. Only input and output tokens
// count toward the block total.
func BuildBlocks(entries []Entry, now time.Time) []SessionBlock {
	if len(entries) == 0 {
		return nil
	}

	var blocks []SessionBlock
	var cur *SessionBlock

	for _, e := range entries {
		if cur == nil || !e.Timestamp.Before(cur.EndTime) {
			if cur != nil {
				blocks = append(blocks, *cur)
			}
			start := floorToHour(e.Timestamp)
			cur = &SessionBlock{
				StartTime: start,
				EndTime:   start.Add(SessionDuration),
				ActualEnd: e.Timestamp,
			}
		}
		cur.TotalTokens += e.InputTokens + e.OutputTokens
		cur.TotalCostUSD += e.CostUSD
		cur.ActualEnd = e.Timestamp
		cur.Entries++
	}
	blocks = append(blocks, *cur)

	for i := range blocks {
		blocks[i].IsActive = blocks[i].EndTime.After(now)
	}
	return blocks
}

// HourlyBurnRate allocates block activity proportionally onto the trailing
// one-hour window. Returns tokens per minute and cost per hour; both zero
// when no block overlaps the window or the overlap carries no tokens.
func HourlyBurnRate(blocks []SessionBlock, now time.Time) (float64, float64) {
	if len(blocks) == 0 {
		return 0, 0
	}

	oneHourAgo := now.Add(-time.Hour)
	var totalTokens, totalCost float64

	for _, block := range blocks {
		end := block.ActualEnd
		if block.IsActive {
			end = now
		}
		if end.Before(oneHourAgo) {
			continue
		}

		overlapStart := block.StartTime
		if overlapStart.Before(oneHourAgo) {
			overlapStart = oneHourAgo
		}
		overlapEnd := end
		if overlapEnd.After(now) {
			overlapEnd = now
		}
		if !overlapEnd.After(overlapStart) {
			continue
		}

		blockMinutes := end.Sub(block.StartTime).Minutes()
		overlapMinutes := overlapEnd.Sub(overlapStart).Minutes()
		if blockMinutes <= 0 {
			continue
		}

		proportion := overlapMinutes / blockMinutes
		totalTokens += float64(block.TotalTokens) * proportion
		totalCost += block.TotalCostUSD * proportion
	}

	if totalTokens <= 0 {
		return 0, 0
	}
	return totalTokens / 60.0, totalCost / 60.0 * 60.0
}

// SessionStart finds the hour-floored start of the current billing window:
// the earliest entry within the trailing 5 hours. Nil when there is no
// recent activity.
func SessionStart(entries []Entry, now time.Time) *time.Time {
	windowStart := now.Add(-SessionDuration)
	var earliest *time.Time
	for _, e := range entries {
		if e.Timestamp.Before(windowStart) {
			continue
		}
		if earliest == nil || e.Timestamp.Before(*earliest) {
			ts := e.Timestamp
			earliest = &ts
		}
	}
	if earliest == nil {
		return nil
	}
	start := floorToHour(*earliest)
	return &start
}

// TimeToReset is the minutes until the current billing window rolls over,
// always in [0, 300]. Without a session start the full window remains.
func TimeToReset(sessionStart *time.Time, now time.Time) int {
	const windowMinutes = 300
	if sessionStart == nil {
		return windowMinutes
	}
	elapsed := int(now.Sub(*sessionStart).Minutes())
	if elapsed < 0 {
		return windowMinutes
	}
	remaining := windowMinutes - elapsed%windowMinutes
	if remaining < 0 {
		return 0
	}
	return remaining
}

func floorToHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}
