package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Authenticator builds an authenticated HTTP client on top of base.
type Authenticator interface {
	HTTPClient(base http.RoundTripper, timeout time.Duration) (*http.Client, error)
}

// GatewayConfig configures the transport stack shared by every API style.
type GatewayConfig struct {
	APIBaseURL        string
	GraphQLURL        string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             RetryConfig
	RateLimit         RateLimitPolicy
	Poll              PollConfig
	// BaseTransport defaults to http.DefaultTransport.
	BaseTransport http.RoundTripper
}

// Gateway is the per-credential GitHub data client. REST, GraphQL and raw
// calls share one throttle and one retry policy.
type Gateway struct {
	rest    *RESTClient
	graphql *GraphQLClient
	stats   *StatsPoller
}

// NewGateway assembles auth -> throttle -> retry into clients for every API style.
func NewGateway(auth Authenticator, cfg GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	throttled := NewThrottledTransport(cfg.BaseTransport, cfg.RequestsPerSecond, cfg.Burst)
	authClient, err := auth.HTTPClient(throttled, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("build authenticated http client: %w", err)
	}

	requestClient := NewClient(authClient, cfg.Retry, cfg.RateLimit)
	shared := &http.Client{Transport: NewRoundTripper(requestClient)}

	rest, err := NewGitHubRESTClient(shared, cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	data, err := NewDataClient(cfg.APIBaseURL, requestClient)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		rest:    rest,
		graphql: NewGraphQLClient(shared, cfg.GraphQLURL),
		stats:   NewStatsPoller(data, cfg.Poll, logger),
	}, nil
}

// GetUserProfile reads the public profile of login.
func (g *Gateway) GetUserProfile(ctx context.Context, login string) (UserProfile, error) {
	return g.rest.GetUserProfile(ctx, login)
}

// GetRepositories lists every owned, non-fork repository of login.
func (g *Gateway) GetRepositories(ctx context.Context, login string) (RepositoriesResult, error) {
	return g.graphql.GetRepositories(ctx, login)
}

// GetTotalCommits counts commits authored by login.
func (g *Gateway) GetTotalCommits(ctx context.Context, login string) (int64, error) {
	return g.rest.GetTotalCommits(ctx, login)
}

// GetContributionsCollection reads one contributions window of login.
func (g *Gateway) GetContributionsCollection(ctx context.Context, login string, from, to time.Time) (ContributionsCollection, error) {
	return g.graphql.GetContributionsCollection(ctx, login, from, to)
}

// GetContributorStats reads contributor stats, polling while GitHub computes them.
func (g *Gateway) GetContributorStats(ctx context.Context, owner, repo string) (ContributorStatsResult, error) {
	return g.stats.GetContributorStats(ctx, owner, repo)
}

// GetWeeklyViews reads the weekly traffic view count of one repository.
func (g *Gateway) GetWeeklyViews(ctx context.Context, owner, repo string) (int64, error) {
	return g.rest.GetWeeklyViews(ctx, owner, repo)
}
