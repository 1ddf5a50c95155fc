package stats

import (
	"slices"
	"strings"
	"time"
)

const calendarDateLayout = "2006-01-02"

// NormalizeCalendar returns the days sorted ascending by date with duplicate
// dates collapsed into one entry carrying the summed count. The input is not
// modified.
func NormalizeCalendar(days []ContributionDay) []ContributionDay {
	if len(days) == 0 {
		return []ContributionDay{}
	}

	type keyedDay struct {
		day ContributionDay
		key string
	}
	keyed := make([]keyedDay, 0, len(days))
	for _, day := range days {
		keyed = append(keyed, keyedDay{day: day, key: calendarKey(day.Date)})
	}
	slices.SortStableFunc(keyed, func(a, b keyedDay) int {
		return strings.Compare(a.key, b.key)
	})

	out := make([]ContributionDay, 0, len(keyed))
	lastKey := ""
	for _, entry := range keyed {
		// Compare against the accumulated entry, so runs of any length collapse.
		if len(out) > 0 && entry.key == lastKey {
			out[len(out)-1].ContributionCount += entry.day.ContributionCount
			continue
		}
		out = append(out, entry.day)
		lastKey = entry.key
	}
	return out
}

// calendarKey maps a date to a sortable key. Timestamps and plain dates that
// name the same UTC day share a key; unparseable values sort by their text.
func calendarKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := time.Parse(calendarDateLayout, trimmed); err == nil {
		return parsed.Format(calendarDateLayout)
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC().Format(calendarDateLayout)
	}
	return trimmed
}
