package stats

import (
	"context"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/githubapi"
	"golang.org/x/sync/errgroup"
)

// YearWindow is one contributions query range, [From, To).
type YearWindow struct {
	Year int
	From time.Time
	To   time.Time
}

// ContributionsFetcher reads one contributions window of a login.
type ContributionsFetcher interface {
	GetContributionsCollection(ctx context.Context, login string, from, to time.Time) (githubapi.ContributionsCollection, error)
}

// YearWindows splits the span between account creation and now into calendar
// year windows. The first window starts at the creation instant and the last
// one ends at now. A creation time after now yields no windows.
func YearWindows(createdAt, now time.Time) []YearWindow {
	createdAt = createdAt.UTC()
	now = now.UTC()
	if createdAt.After(now) {
		return nil
	}

	windows := make([]YearWindow, 0, now.Year()-createdAt.Year()+1)
	for year := createdAt.Year(); year <= now.Year(); year++ {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if year == createdAt.Year() {
			from = createdAt
		}
		to := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		if year == now.Year() {
			to = now
		}
		windows = append(windows, YearWindow{Year: year, From: from, To: to})
	}
	return windows
}

// StitchContributions fetches every year window of login concurrently and
// combines the results into one collection spanning the account's lifetime.
// A zero creation time is rejected before any window is fetched.
func StitchContributions(ctx context.Context, fetcher ContributionsFetcher, login string, createdAt, now time.Time) (githubapi.ContributionsCollection, error) {
	if createdAt.IsZero() {
		return githubapi.ContributionsCollection{}, &MalformedUpstreamResponse{
			Source: "user profile " + login,
			Reason: "account creation time is missing",
		}
	}
	windows := YearWindows(createdAt, now)
	parts := make([]githubapi.ContributionsCollection, len(windows))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, window := range windows {
		group.Go(func() error {
			collection, err := fetcher.GetContributionsCollection(groupCtx, login, window.From, window.To)
			if err != nil {
				return &YearFetchError{Year: window.Year, Err: err}
			}
			parts[i] = collection
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return githubapi.ContributionsCollection{}, err
	}
	if len(parts) == 0 {
		return githubapi.ContributionsCollection{}, &AllYearsFailedError{}
	}
	return stitchCollections(parts), nil
}

// stitchCollections sums scalar totals and concatenates per-repository
// contributions and calendar weeks in the order given.
func stitchCollections(parts []githubapi.ContributionsCollection) githubapi.ContributionsCollection {
	stitched := githubapi.ContributionsCollection{}
	for _, part := range parts {
		stitched.TotalCommitContributions += part.TotalCommitContributions
		stitched.TotalIssueContributions += part.TotalIssueContributions
		stitched.TotalRepositoryContributions += part.TotalRepositoryContributions
		stitched.TotalPullRequestContributions += part.TotalPullRequestContributions
		stitched.TotalPullRequestReviewContributions += part.TotalPullRequestReviewContributions
		stitched.RestrictedContributionsCount += part.RestrictedContributionsCount
		stitched.ContributionCalendar.TotalContributions += part.ContributionCalendar.TotalContributions
		stitched.ContributionCalendar.Weeks = append(stitched.ContributionCalendar.Weeks, part.ContributionCalendar.Weeks...)
		stitched.CommitContributionsByRepository = append(stitched.CommitContributionsByRepository, part.CommitContributionsByRepository...)
	}
	return stitched
}
