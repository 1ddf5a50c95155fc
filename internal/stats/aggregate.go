package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultRepoConcurrency = 8

// ErrStatsPending is wrapped when contributor statistics were still being
// computed upstream and pending results are configured to fail.
var ErrStatsPending = errors.New("contributor statistics still being computed")

// DataClient is the GitHub data contract the aggregator consumes.
type DataClient interface {
	GetUserProfile(ctx context.Context, login string) (githubapi.UserProfile, error)
	GetRepositories(ctx context.Context, login string) (githubapi.RepositoriesResult, error)
	GetTotalCommits(ctx context.Context, login string) (int64, error)
	GetContributionsCollection(ctx context.Context, login string, from, to time.Time) (githubapi.ContributionsCollection, error)
	GetContributorStats(ctx context.Context, owner, repo string) (githubapi.ContributorStatsResult, error)
	GetWeeklyViews(ctx context.Context, owner, repo string) (int64, error)
}

// AggregatorOptions tunes per-user aggregation.
type AggregatorOptions struct {
	// RepoConcurrency caps in-flight per-repository calls. Defaults to 8.
	RepoConcurrency int
	// FailOnPendingStats fails the aggregation when a repository's
	// contributor statistics are still pending after polling. When false the
	// repository contributes zero lines and is counted in PendingRepositories.
	FailOnPendingStats bool
}

// Aggregator builds one UserStats record from the GitHub data of one user.
type Aggregator struct {
	client  DataClient
	options AggregatorOptions
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewAggregator creates an aggregator over client.
func NewAggregator(client DataClient, options AggregatorOptions, logger *zap.Logger, metrics *Metrics) *Aggregator {
	if options.RepoConcurrency <= 0 {
		options.RepoConcurrency = defaultRepoConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		client:  client,
		options: options,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

type repoActivity struct {
	added   int64
	deleted int64
	changed int64
	views   int64
	pending bool
}

// Aggregate fetches and combines every data source for username.
func (a *Aggregator) Aggregate(ctx context.Context, username string) (stats UserStats, err error) {
	started := time.Now()
	defer func() { a.metrics.observeAggregation(started, err) }()

	logger := a.logger.With(zap.String("username", username))

	profile, err := a.client.GetUserProfile(ctx, username)
	a.metrics.observeCall("get_user_profile", err)
	if err != nil {
		return UserStats{}, &UpstreamRequestError{Op: "get user profile", Username: username, Err: err}
	}
	if profile.CreatedAt.IsZero() {
		return UserStats{}, &MalformedUpstreamResponse{
			Source: "user profile " + username,
			Reason: "created_at is missing",
		}
	}
	login := profile.Login
	if login == "" {
		login = username
	}

	var (
		repositories  githubapi.RepositoriesResult
		totalCommits  int64
		contributions githubapi.ContributionsCollection
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result, err := a.client.GetRepositories(groupCtx, login)
		a.metrics.observeCall("get_repositories", err)
		if err != nil {
			return &UpstreamRequestError{Op: "get repositories", Username: username, Err: err}
		}
		repositories = result
		return nil
	})
	group.Go(func() error {
		total, err := a.client.GetTotalCommits(groupCtx, login)
		a.metrics.observeCall("get_total_commits", err)
		if err != nil {
			return &UpstreamRequestError{Op: "get total commits", Username: username, Err: err}
		}
		totalCommits = total
		return nil
	})
	group.Go(func() error {
		collection, err := StitchContributions(groupCtx, a.client, login, profile.CreatedAt, a.now())
		a.metrics.observeCall("get_contributions", err)
		if err != nil {
			upstream := &UpstreamRequestError{Op: "get contributions", Username: username, Err: err}
			var yearErr *YearFetchError
			if errors.As(err, &yearErr) {
				upstream.Year = yearErr.Year
			}
			return upstream
		}
		contributions = collection
		return nil
	})
	if err := group.Wait(); err != nil {
		return UserStats{}, err
	}

	activity, err := a.collectRepoActivity(ctx, logger, username, login, repositories.Repositories)
	if err != nil {
		return UserStats{}, err
	}

	stats = UserStats{
		Name:               profile.Name,
		Username:           username,
		AvatarURL:          profile.AvatarURL,
		TotalCommits:       totalCommits,
		TotalPullRequests:  repositories.TotalPullRequests,
		OpenIssues:         repositories.OpenIssues,
		ClosedIssues:       repositories.ClosedIssues,
		TotalContributions: contributions.ContributionCalendar.TotalContributions,
		TopLanguages:       []Language{},
		ContributionData:   flattenCalendar(contributions.ContributionCalendar),
	}
	for _, repo := range repositories.Repositories {
		stats.StarCount += repo.Stars
		stats.ForkCount += repo.Forks
	}
	for _, repo := range activity {
		stats.LinesAdded += repo.added
		stats.LinesDeleted += repo.deleted
		stats.LinesChanged += repo.changed
		stats.RepoViews += repo.views
		if repo.pending {
			stats.PendingRepositories++
		}
	}
	stats.LinesOfCodeChanged = stats.LinesAdded + stats.LinesDeleted + stats.LinesChanged
	stats.TopLanguages, stats.CodeByteTotal = collectLanguages(repositories.Repositories)
	stats.FetchedAt = a.now().UnixMilli()

	logger.Debug("aggregated user stats",
		zap.Int("repositories", len(repositories.Repositories)),
		zap.Int64("pending_repositories", stats.PendingRepositories),
	)
	return stats, nil
}

// collectRepoActivity fans out one contributor-stats call and one views call
// per repository, capped at RepoConcurrency in flight.
func (a *Aggregator) collectRepoActivity(ctx context.Context, logger *zap.Logger, username, owner string, repositories []githubapi.Repository) ([]repoActivity, error) {
	activity := make([]repoActivity, len(repositories))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.options.RepoConcurrency)
	for i, repo := range repositories {
		group.Go(func() error {
			result, err := a.client.GetContributorStats(groupCtx, owner, repo.Name)
			a.metrics.observeCall("get_contributor_stats", err)
			if err != nil {
				return &UpstreamRequestError{Op: "get contributor stats", Username: username, Repository: repo.Name, Err: err}
			}

			switch {
			case result.Pending:
				a.metrics.observePending()
				logger.Warn("contributor statistics still being computed; repository lines not counted",
					zap.String("repo", repo.Name),
					zap.Int("attempt", result.Polls),
				)
				if a.options.FailOnPendingStats {
					return &UpstreamRequestError{Op: "get contributor stats", Username: username, Repository: repo.Name, Err: ErrStatsPending}
				}
				activity[i].pending = true
			case result.Status == githubapi.EndpointStatusOK:
				added, deleted, changed := sumContributorWeeks(result.Contributors, owner)
				activity[i].added = added
				activity[i].deleted = deleted
				activity[i].changed = changed
			case result.Status.Empty():
				logger.Debug("repository has no contributor statistics",
					zap.String("repo", repo.Name),
					zap.String("status", string(result.Status)),
				)
			default:
				return &UpstreamRequestError{
					Op:         "get contributor stats",
					Username:   username,
					Repository: repo.Name,
					Err:        fmt.Errorf("unexpected status %d (%s)", result.StatusCode, result.Status),
				}
			}
			return nil
		})
		group.Go(func() error {
			views, err := a.client.GetWeeklyViews(groupCtx, owner, repo.Name)
			a.metrics.observeCall("get_weekly_views", err)
			if err != nil {
				return &UpstreamRequestError{Op: "get weekly views", Username: username, Repository: repo.Name, Err: err}
			}
			activity[i].views = views
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return activity, nil
}

func sumContributorWeeks(contributors []githubapi.ContributorStats, login string) (added, deleted, changed int64) {
	for _, contributor := range contributors {
		if !strings.EqualFold(contributor.User, login) {
			continue
		}
		for _, week := range contributor.Weeks {
			added += week.Additions
			deleted += week.Deletions
			changed += week.Changes
		}
	}
	return added, deleted, changed
}

// collectLanguages accumulates language sizes across repositories, skipping
// excluded labels. Entries keep first-seen order; ranking is left to
// NormalizeLanguages.
func collectLanguages(repositories []githubapi.Repository) ([]Language, int64) {
	languages := []Language{}
	index := make(map[string]int)
	var total int64
	for _, repo := range repositories {
		for _, edge := range repo.Languages {
			if IsExcludedLanguage(edge.Name) {
				continue
			}
			total += edge.Size
			if i, ok := index[edge.Name]; ok {
				languages[i].Value += edge.Size
				continue
			}
			entry := Language{LanguageName: edge.Name, Value: edge.Size}
			if edge.Color != nil {
				color := *edge.Color
				entry.Color = &color
			}
			index[edge.Name] = len(languages)
			languages = append(languages, entry)
		}
	}
	return languages, total
}

func flattenCalendar(calendar githubapi.ContributionCalendar) []ContributionDay {
	days := []ContributionDay{}
	for _, week := range calendar.Weeks {
		for _, day := range week.ContributionDays {
			days = append(days, ContributionDay{Date: day.Date, ContributionCount: day.ContributionCount})
		}
	}
	return days
}
