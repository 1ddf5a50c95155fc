package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/githubapi"
)

type window struct {
	login string
	from  time.Time
	to    time.Time
}

// fakeDataClient serves canned responses keyed by login, repository or year.
type fakeDataClient struct {
	profile       githubapi.UserProfile
	profileErr    error
	repositories  githubapi.RepositoriesResult
	reposErr      error
	totalCommits  int64
	commitsErr    error
	collections   map[int]githubapi.ContributionsCollection
	yearErrs      map[int]error
	contributors  map[string]githubapi.ContributorStatsResult
	contribErrs   map[string]error
	views         map[string]int64
	viewErrs      map[string]error
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
	callCount     atomic.Int32
	windowsMu     sync.Mutex
	windowsCalled []window
}

func (f *fakeDataClient) enter() func() {
	f.callCount.Add(1)
	current := f.inFlight.Add(1)
	for {
		peak := f.maxInFlight.Load()
		if current <= peak || f.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeDataClient) GetUserProfile(_ context.Context, _ string) (githubapi.UserProfile, error) {
	f.callCount.Add(1)
	return f.profile, f.profileErr
}

func (f *fakeDataClient) GetRepositories(_ context.Context, _ string) (githubapi.RepositoriesResult, error) {
	f.callCount.Add(1)
	return f.repositories, f.reposErr
}

func (f *fakeDataClient) GetTotalCommits(_ context.Context, _ string) (int64, error) {
	f.callCount.Add(1)
	return f.totalCommits, f.commitsErr
}

func (f *fakeDataClient) GetContributionsCollection(_ context.Context, login string, from, to time.Time) (githubapi.ContributionsCollection, error) {
	f.callCount.Add(1)
	f.windowsMu.Lock()
	f.windowsCalled = append(f.windowsCalled, window{login: login, from: from, to: to})
	f.windowsMu.Unlock()

	year := from.UTC().Year()
	if err, ok := f.yearErrs[year]; ok {
		return githubapi.ContributionsCollection{}, err
	}
	collection, ok := f.collections[year]
	if !ok {
		return githubapi.ContributionsCollection{}, errors.New("unexpected year")
	}
	return collection, nil
}

func (f *fakeDataClient) GetContributorStats(_ context.Context, _ string, repo string) (githubapi.ContributorStatsResult, error) {
	defer f.enter()()
	if err, ok := f.contribErrs[repo]; ok {
		return githubapi.ContributorStatsResult{}, err
	}
	if result, ok := f.contributors[repo]; ok {
		return result, nil
	}
	return githubapi.ContributorStatsResult{Status: githubapi.EndpointStatusOK}, nil
}

func (f *fakeDataClient) GetWeeklyViews(_ context.Context, _ string, repo string) (int64, error) {
	defer f.enter()()
	if err, ok := f.viewErrs[repo]; ok {
		return 0, err
	}
	return f.views[repo], nil
}

func calendarOf(total int64, days ...githubapi.CalendarDay) githubapi.ContributionCalendar {
	return githubapi.ContributionCalendar{
		TotalContributions: total,
		Weeks:              []githubapi.CalendarWeek{{ContributionDays: days}},
	}
}
