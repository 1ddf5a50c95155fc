package githubapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/otel/attribute"
)

// GetUserProfile reads the public profile of login.
func (c *RESTClient) GetUserProfile(ctx context.Context, login string) (profile UserProfile, err error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return UserProfile{}, fmt.Errorf("login is required")
	}

	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "githubapi.rest.get_user",
		attribute.String("github.login", trimmed))
	defer func() { telemetry.EndSpan(span, err) }()

	user, _, err := c.Client.Users.Get(ctx, trimmed)
	if err != nil {
		return UserProfile{}, fmt.Errorf("get user %q: %w", trimmed, err)
	}
	return UserProfile{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
		CreatedAt: user.GetCreatedAt().Time,
	}, nil
}

// GetTotalCommits counts commits authored by login through commit search.
func (c *RESTClient) GetTotalCommits(ctx context.Context, login string) (total int64, err error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return 0, fmt.Errorf("login is required")
	}

	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "githubapi.rest.search_commits",
		attribute.String("github.login", trimmed))
	defer func() { telemetry.EndSpan(span, err) }()

	result, _, err := c.Client.Search.Commits(ctx, "author:"+trimmed, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0, fmt.Errorf("search commits by %q: %w", trimmed, err)
	}
	return int64(result.GetTotal()), nil
}

// GetWeeklyViews reads the view count of the trailing traffic window, broken down per week.
func (c *RESTClient) GetWeeklyViews(ctx context.Context, owner, repo string) (views int64, err error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return 0, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return 0, fmt.Errorf("repo is required")
	}

	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "githubapi.rest.traffic_views",
		attribute.String("github.repo", trimmedOwner+"/"+trimmedRepo))
	defer func() { telemetry.EndSpan(span, err) }()

	traffic, _, err := c.Client.Repositories.ListTrafficViews(ctx, trimmedOwner, trimmedRepo, &github.TrafficBreakdownOptions{
		Per: "week",
	})
	if err != nil {
		return 0, fmt.Errorf("list traffic views for %s/%s: %w", trimmedOwner, trimmedRepo, err)
	}
	return int64(traffic.GetCount()), nil
}
