package stats

import (
	"fmt"
	"strings"
)

// Merge combines per-user records into one. Counters are summed, language and
// calendar lists are concatenated in record order and left for the normalizers.
// Identity fields come from the record whose username matches primary; an
// empty primary selects the first record. Inputs are not modified.
func Merge(primary string, records []UserStats) (UserStats, error) {
	if len(records) == 0 {
		return UserStats{}, fmt.Errorf("merge: at least one record is required")
	}

	identity := 0
	if strings.TrimSpace(primary) != "" {
		identity = -1
		for i, record := range records {
			if strings.EqualFold(record.Username, primary) {
				identity = i
				break
			}
		}
		if identity < 0 {
			return UserStats{}, fmt.Errorf("merge: primary identity %q is not among the merged records", primary)
		}
	}

	merged := records[0].Clone()
	for _, record := range records[1:] {
		sums := merged.counters()
		for i, value := range record.counters() {
			*sums[i] += *value
		}
		merged.TopLanguages = append(merged.TopLanguages, cloneLanguages(record.TopLanguages)...)
		merged.ContributionData = append(merged.ContributionData, record.ContributionData...)
		if record.FetchedAt > merged.FetchedAt {
			merged.FetchedAt = record.FetchedAt
		}
	}

	merged.Name = records[identity].Name
	merged.Username = records[identity].Username
	merged.AvatarURL = records[identity].AvatarURL
	return merged, nil
}
