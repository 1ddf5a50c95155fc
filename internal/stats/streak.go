package stats

import "time"

// ComputeStreak derives streaks from a normalized calendar. A day missing from
// the calendar counts as inactive. The current streak may end yesterday when
// today has no contributions yet.
func ComputeStreak(days []ContributionDay, today time.Time) Streak {
	active := make(map[string]bool, len(days))
	result := Streak{}

	runLength := 0
	runStart := ""
	var previous time.Time
	for _, day := range days {
		date, err := time.Parse(calendarDateLayout, calendarKey(day.Date))
		if err != nil {
			continue
		}
		if day.ContributionCount <= 0 {
			runLength = 0
			continue
		}
		active[date.Format(calendarDateLayout)] = true

		if runLength > 0 && date.Sub(previous) == 24*time.Hour {
			runLength++
		} else {
			runLength = 1
			runStart = date.Format(calendarDateLayout)
		}
		previous = date

		if runLength > result.Longest {
			result.Longest = runLength
			result.LongestStart = runStart
			result.LongestEnd = date.Format(calendarDateLayout)
		}
	}

	today = today.UTC()
	cursor := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if !active[cursor.Format(calendarDateLayout)] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for active[cursor.Format(calendarDateLayout)] {
		result.Current++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return result
}
