package stats

import "slices"

// Language is one ranked language entry with its byte volume.
type Language struct {
	LanguageName string  `json:"languageName"`
	Color        *string `json:"color"`
	Value        int64   `json:"value"`
}

// ContributionDay is one calendar day with its contribution count.
type ContributionDay struct {
	Date              string `json:"date"`
	ContributionCount int    `json:"contributionCount"`
}

// Streak summarizes consecutive active days in a normalized calendar.
type Streak struct {
	Current      int    `json:"current"`
	Longest      int    `json:"longest"`
	LongestStart string `json:"longestStart,omitempty"`
	LongestEnd   string `json:"longestEnd,omitempty"`
}

// UserStats is the aggregate activity record for one user or a merged set of users.
type UserStats struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`

	StarCount          int64 `json:"starCount"`
	ForkCount          int64 `json:"forkCount"`
	TotalCommits       int64 `json:"totalCommits"`
	TotalPullRequests  int64 `json:"totalPullRequests"`
	OpenIssues         int64 `json:"openIssues"`
	ClosedIssues       int64 `json:"closedIssues"`
	TotalContributions int64 `json:"totalContributions"`
	RepoViews          int64 `json:"repoViews"`
	LinesOfCodeChanged int64 `json:"linesOfCodeChanged"`
	LinesAdded         int64 `json:"linesAdded"`
	LinesDeleted       int64 `json:"linesDeleted"`
	LinesChanged       int64 `json:"linesChanged"`
	CodeByteTotal      int64 `json:"codeByteTotal"`

	// PendingRepositories counts repositories whose contributor statistics
	// were still being computed upstream when aggregation finished.
	PendingRepositories int64 `json:"pendingRepositories,omitempty"`

	TopLanguages     []Language        `json:"topLanguages"`
	ContributionData []ContributionDay `json:"contributionData"`
	FetchedAt        int64             `json:"fetchedAt"`

	Streak *Streak `json:"streak,omitempty"`
}

// Clone returns a deep copy of the record.
func (u UserStats) Clone() UserStats {
	cloned := u
	cloned.TopLanguages = cloneLanguages(u.TopLanguages)
	cloned.ContributionData = slices.Clone(u.ContributionData)
	if u.Streak != nil {
		streak := *u.Streak
		cloned.Streak = &streak
	}
	return cloned
}

func cloneLanguages(in []Language) []Language {
	if in == nil {
		return nil
	}
	out := make([]Language, len(in))
	for i, language := range in {
		out[i] = language
		if language.Color != nil {
			color := *language.Color
			out[i].Color = &color
		}
	}
	return out
}

// counters lists every summable counter of a record, in field order.
func (u *UserStats) counters() []*int64 {
	return []*int64{
		&u.StarCount,
		&u.ForkCount,
		&u.TotalCommits,
		&u.TotalPullRequests,
		&u.OpenIssues,
		&u.ClosedIssues,
		&u.TotalContributions,
		&u.RepoViews,
		&u.LinesOfCodeChanged,
		&u.LinesAdded,
		&u.LinesDeleted,
		&u.LinesChanged,
		&u.CodeByteTotal,
		&u.PendingRepositories,
	}
}
