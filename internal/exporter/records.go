package exporter

import (
	"sort"
	"strings"
	"sync"

	"github.com/cam3ron2/github-stats-card/internal/stats"
)

type counterGauge struct {
	name  string
	help  string
	value func(stats.UserStats) int64
}

var counterGauges = []counterGauge{
	{"github_user_stars", "Stars across owned non-fork repositories.", func(s stats.UserStats) int64 { return s.StarCount }},
	{"github_user_forks", "Forks across owned non-fork repositories.", func(s stats.UserStats) int64 { return s.ForkCount }},
	{"github_user_commits", "Commits authored, from commit search.", func(s stats.UserStats) int64 { return s.TotalCommits }},
	{"github_user_pull_requests", "Pull requests across owned repositories.", func(s stats.UserStats) int64 { return s.TotalPullRequests }},
	{"github_user_open_issues", "Open issues across owned repositories.", func(s stats.UserStats) int64 { return s.OpenIssues }},
	{"github_user_closed_issues", "Closed issues across owned repositories.", func(s stats.UserStats) int64 { return s.ClosedIssues }},
	{"github_user_contributions", "Calendar contributions since account creation.", func(s stats.UserStats) int64 { return s.TotalContributions }},
	{"github_user_repo_views", "Latest weekly views summed across repositories.", func(s stats.UserStats) int64 { return s.RepoViews }},
	{"github_user_lines_of_code_changed", "Lines added, deleted and changed by the user.", func(s stats.UserStats) int64 { return s.LinesOfCodeChanged }},
	{"github_user_code_bytes", "Language bytes across owned repositories.", func(s stats.UserStats) int64 { return s.CodeByteTotal }},
	{"github_user_pending_repositories", "Repositories whose contributor statistics were not ready.", func(s stats.UserStats) int64 { return s.PendingRepositories }},
}

// Recorder keeps the latest record per merged identity and exposes it as
// gauge samples.
type Recorder struct {
	mu      sync.RWMutex
	records map[string]stats.UserStats
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]stats.UserStats)}
}

// Record replaces the record stored for the record's username.
func (r *Recorder) Record(record stats.UserStats) {
	if r == nil || strings.TrimSpace(record.Username) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[strings.ToLower(record.Username)] = record.Clone()
}

// Snapshot renders every stored record, ordered by username.
func (r *Recorder) Snapshot() []MetricPoint {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.records))
	for key := range r.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	points := make([]MetricPoint, 0, len(keys)*(len(counterGauges)+4))
	for _, key := range keys {
		record := r.records[key]
		user := map[string]string{"user": record.Username}

		for _, gauge := range counterGauges {
			points = append(points, MetricPoint{
				Name:   gauge.name,
				Help:   gauge.help,
				Labels: user,
				Value:  float64(gauge.value(record)),
			})
		}
		for _, language := range record.TopLanguages {
			points = append(points, MetricPoint{
				Name:   "github_user_language_bytes",
				Help:   "Bytes of code per language.",
				Labels: map[string]string{"user": record.Username, "language": language.LanguageName},
				Value:  float64(language.Value),
			})
		}
		if record.Streak != nil {
			points = append(points,
				MetricPoint{Name: "github_user_streak_current_days", Help: "Current contribution streak.", Labels: user, Value: float64(record.Streak.Current)},
				MetricPoint{Name: "github_user_streak_longest_days", Help: "Longest contribution streak.", Labels: user, Value: float64(record.Streak.Longest)},
			)
		}
		if record.FetchedAt > 0 {
			points = append(points, MetricPoint{
				Name:   "github_user_fetched_timestamp_seconds",
				Help:   "Time the record was aggregated.",
				Labels: user,
				Value:  float64(record.FetchedAt) / 1000,
			})
		}
	}
	return points
}
