package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/githubapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var aggregateNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func newFixtureClient() *fakeDataClient {
	return &fakeDataClient{
		profile: githubapi.UserProfile{
			Login:     "Alice",
			Name:      "Alice Liddell",
			AvatarURL: "https://avatars.example/alice",
			CreatedAt: time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
		repositories: githubapi.RepositoriesResult{
			Repositories: []githubapi.Repository{
				{
					Name:  "card",
					Stars: 10,
					Forks: 2,
					Languages: []githubapi.LanguageEdge{
						{Name: "Go", Color: color("#00ADD8"), Size: 1000},
						{Name: "CSS", Color: color("#563d7c"), Size: 500},
					},
				},
				{
					Name:  "site",
					Stars: 5,
					Forks: 1,
					Languages: []githubapi.LanguageEdge{
						{Name: "TypeScript", Color: color("#3178c6"), Size: 700},
						{Name: "Go", Color: color("#00ADD8"), Size: 300},
						{Name: "html", Size: 900},
					},
				},
			},
			TotalPullRequests: 7,
			OpenIssues:        3,
			ClosedIssues:      9,
		},
		totalCommits: 321,
		collections: map[int]githubapi.ContributionsCollection{
			2023: {ContributionCalendar: calendarOf(4,
				githubapi.CalendarDay{Date: "2023-12-30", ContributionCount: 1},
				githubapi.CalendarDay{Date: "2023-12-31", ContributionCount: 3},
			)},
			2024: {ContributionCalendar: calendarOf(2,
				githubapi.CalendarDay{Date: "2024-01-01", ContributionCount: 2},
			)},
		},
		contributors: map[string]githubapi.ContributorStatsResult{
			"card": {
				Status: githubapi.EndpointStatusOK,
				Contributors: []githubapi.ContributorStats{
					{User: "alice", Weeks: []githubapi.ContributorWeek{
						{Additions: 10, Deletions: 4, Changes: 1},
						{Additions: 5, Deletions: 0, Changes: 2},
					}},
					{User: "mallory", Weeks: []githubapi.ContributorWeek{
						{Additions: 1000, Deletions: 1000, Changes: 1000},
					}},
				},
			},
			"site": {
				Status: githubapi.EndpointStatusOK,
				Contributors: []githubapi.ContributorStats{
					{User: "Alice", Weeks: []githubapi.ContributorWeek{
						{Additions: 1, Deletions: 1, Changes: 1},
					}},
				},
			},
		},
		views: map[string]int64{"card": 40, "site": 2},
	}
}

func newTestAggregator(client DataClient, options AggregatorOptions) *Aggregator {
	aggregator := NewAggregator(client, options, zap.NewNop(), nil)
	aggregator.now = func() time.Time { return aggregateNow }
	return aggregator
}

func TestAggregatorAggregate(t *testing.T) {
	t.Parallel()

	client := newFixtureClient()
	got, err := newTestAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "Alice Liddell", got.Name)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "https://avatars.example/alice", got.AvatarURL)
	assert.Equal(t, int64(15), got.StarCount)
	assert.Equal(t, int64(3), got.ForkCount)
	assert.Equal(t, int64(321), got.TotalCommits)
	assert.Equal(t, int64(7), got.TotalPullRequests)
	assert.Equal(t, int64(3), got.OpenIssues)
	assert.Equal(t, int64(9), got.ClosedIssues)
	assert.Equal(t, int64(6), got.TotalContributions)
	assert.Equal(t, int64(42), got.RepoViews)

	assert.Equal(t, int64(16), got.LinesAdded)
	assert.Equal(t, int64(5), got.LinesDeleted)
	assert.Equal(t, int64(4), got.LinesChanged)
	assert.Equal(t, int64(25), got.LinesOfCodeChanged)

	assert.Equal(t, int64(2000), got.CodeByteTotal)
	require.Len(t, got.TopLanguages, 2)
	assert.Equal(t, "Go", got.TopLanguages[0].LanguageName)
	assert.Equal(t, int64(1300), got.TopLanguages[0].Value)
	assert.Equal(t, "TypeScript", got.TopLanguages[1].LanguageName)
	for _, language := range got.TopLanguages {
		assert.False(t, IsExcludedLanguage(language.LanguageName))
	}

	assert.Equal(t, []ContributionDay{
		{Date: "2023-12-30", ContributionCount: 1},
		{Date: "2023-12-31", ContributionCount: 3},
		{Date: "2024-01-01", ContributionCount: 2},
	}, got.ContributionData)
	assert.Equal(t, aggregateNow.UnixMilli(), got.FetchedAt)
	assert.Zero(t, got.PendingRepositories)
	for _, called := range client.windowsCalled {
		assert.Equal(t, "Alice", called.login, "contributions must be read for the profile login")
	}
}

func TestAggregatorRejectsMissingCreationTime(t *testing.T) {
	t.Parallel()

	client := newFixtureClient()
	client.profile.CreatedAt = time.Time{}

	_, err := newTestAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), "alice")
	var malformed *MalformedUpstreamResponse
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Source, "alice")
	assert.Equal(t, int32(1), client.callCount.Load(), "only the profile may be fetched")
	assert.Empty(t, client.windowsCalled)
}

func TestAggregatorCapsRepositoryConcurrency(t *testing.T) {
	t.Parallel()

	client := newFixtureClient()
	repos := make([]githubapi.Repository, 0, 30)
	for i := range 30 {
		repos = append(repos, githubapi.Repository{Name: fmt.Sprintf("repo-%d", i)})
	}
	client.repositories.Repositories = repos

	_, err := newTestAggregator(client, AggregatorOptions{RepoConcurrency: 3}).Aggregate(context.Background(), "alice")
	require.NoError(t, err)
	assert.LessOrEqual(t, client.maxInFlight.Load(), int32(3))
}

func TestAggregatorPendingContributorStats(t *testing.T) {
	t.Parallel()

	pending := githubapi.ContributorStatsResult{
		Status:  githubapi.EndpointStatusAccepted,
		Pending: true,
		Polls:   4,
	}

	t.Run("counted_when_tolerated", func(t *testing.T) {
		t.Parallel()
		client := newFixtureClient()
		client.contributors["site"] = pending

		got, err := newTestAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.PendingRepositories)
		assert.Equal(t, int64(22), got.LinesOfCodeChanged)
	})

	t.Run("fails_when_configured", func(t *testing.T) {
		t.Parallel()
		client := newFixtureClient()
		client.contributors["site"] = pending

		_, err := newTestAggregator(client, AggregatorOptions{FailOnPendingStats: true}).Aggregate(context.Background(), "alice")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStatsPending)
		var upstream *UpstreamRequestError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, "site", upstream.Repository)
	})
}

func TestAggregatorContributorStatusHandling(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		status  githubapi.EndpointStatus
		code    int
		wantErr bool
	}{
		{name: "no_content_is_empty", status: githubapi.EndpointStatusNoContent, code: 204},
		{name: "not_found_is_empty", status: githubapi.EndpointStatusNotFound, code: 404},
		{name: "conflict_is_empty", status: githubapi.EndpointStatusConflict, code: 409},
		{name: "forbidden_fails", status: githubapi.EndpointStatusForbidden, code: 403, wantErr: true},
		{name: "unavailable_fails", status: githubapi.EndpointStatusUnavailable, code: 502, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newFixtureClient()
			client.contributors["card"] = githubapi.ContributorStatsResult{Status: tc.status, StatusCode: tc.code}

			got, err := newTestAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), "alice")
			if tc.wantErr {
				var upstream *UpstreamRequestError
				require.ErrorAs(t, err, &upstream)
				assert.Equal(t, "card", upstream.Repository)
				assert.Contains(t, err.Error(), "repo=card")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(3), got.LinesOfCodeChanged)
		})
	}
}

func TestAggregatorPropagatesFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	testCases := []struct {
		name     string
		mutate   func(client *fakeDataClient)
		wantOp   string
		wantRepo string
		wantYear int
	}{
		{
			name:   "profile",
			mutate: func(client *fakeDataClient) { client.profileErr = boom },
			wantOp: "get user profile",
		},
		{
			name:   "repositories",
			mutate: func(client *fakeDataClient) { client.reposErr = boom },
			wantOp: "get repositories",
		},
		{
			name:   "total_commits",
			mutate: func(client *fakeDataClient) { client.commitsErr = boom },
			wantOp: "get total commits",
		},
		{
			name:     "contributions_year",
			mutate:   func(client *fakeDataClient) { client.yearErrs = map[int]error{2024: boom} },
			wantOp:   "get contributions",
			wantYear: 2024,
		},
		{
			name:     "contributor_stats",
			mutate:   func(client *fakeDataClient) { client.contribErrs = map[string]error{"site": boom} },
			wantOp:   "get contributor stats",
			wantRepo: "site",
		},
		{
			name:     "weekly_views",
			mutate:   func(client *fakeDataClient) { client.viewErrs = map[string]error{"card": boom} },
			wantOp:   "get weekly views",
			wantRepo: "card",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newFixtureClient()
			tc.mutate(client)

			_, err := newTestAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), "alice")
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)

			var upstream *UpstreamRequestError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, tc.wantOp, upstream.Op)
			assert.Equal(t, "alice", upstream.Username)
			assert.Equal(t, tc.wantRepo, upstream.Repository)
			assert.Equal(t, tc.wantYear, upstream.Year)
		})
	}
}

func TestAggregatorRecordsMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)

	client := newFixtureClient()
	client.contributors["site"] = githubapi.ContributorStatsResult{Status: githubapi.EndpointStatusAccepted, Pending: true}
	aggregator := NewAggregator(client, AggregatorOptions{}, zap.NewNop(), metrics)
	aggregator.now = func() time.Time { return aggregateNow }

	_, err = aggregator.Aggregate(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.aggregations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pendingRepos))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.upstreamCalls.WithLabelValues("get_weekly_views", "success")))
}
