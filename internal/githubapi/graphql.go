package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	"github.com/shurcooL/githubv4"
	"go.opentelemetry.io/otel/attribute"
)

const defaultRepositoryPageSize = 100

// GraphQLClient issues the GraphQL v4 queries the aggregator depends on.
type GraphQLClient struct {
	client   *githubv4.Client
	pageSize int
}

// NewGraphQLClient creates a GraphQL client. An empty endpoint targets github.com.
func NewGraphQLClient(httpClient *http.Client, endpoint string) *GraphQLClient {
	trimmed := strings.TrimSpace(endpoint)
	var client *githubv4.Client
	if trimmed == "" {
		client = githubv4.NewClient(httpClient)
	} else {
		client = githubv4.NewEnterpriseClient(trimmed, httpClient)
	}
	return &GraphQLClient{
		client:   client,
		pageSize: defaultRepositoryPageSize,
	}
}

type repositoriesQuery struct {
	User struct {
		Repositories struct {
			Nodes []struct {
				Name       string
				ForkCount  int
				Stargazers struct {
					TotalCount int
				}
				Languages struct {
					Edges []struct {
						Size int
						Node struct {
							Name  string
							Color *string
						}
					}
				} `graphql:"languages(first: 10, orderBy: {field: SIZE, direction: DESC})"`
			}
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
		} `graphql:"repositories(first: $pageSize, after: $cursor, ownerAffiliations: OWNER, isFork: false, orderBy: {field: STARGAZERS, direction: DESC})"`
		PullRequests struct {
			TotalCount int
		}
		OpenIssues struct {
			TotalCount int
		} `graphql:"openIssues: issues(states: OPEN)"`
		ClosedIssues struct {
			TotalCount int
		} `graphql:"closedIssues: issues(states: CLOSED)"`
	} `graphql:"user(login: $login)"`
}

// GetRepositories lists every owned, non-fork repository of login ordered by
// stars, following pagination until the listing is exhausted.
func (c *GraphQLClient) GetRepositories(ctx context.Context, login string) (result RepositoriesResult, err error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return RepositoriesResult{}, fmt.Errorf("login is required")
	}

	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "githubapi.graphql.repositories",
		attribute.String("github.login", trimmed))
	defer func() { telemetry.EndSpan(span, err) }()

	variables := map[string]any{
		"login":    githubv4.String(trimmed),
		"pageSize": githubv4.Int(c.pageSize),
		"cursor":   (*githubv4.String)(nil),
	}
	for {
		var query repositoriesQuery
		if err := c.client.Query(ctx, &query, variables); err != nil {
			return RepositoriesResult{}, fmt.Errorf("query repositories of %q (page %d): %w", trimmed, result.Pages+1, err)
		}
		result.Pages++

		for _, node := range query.User.Repositories.Nodes {
			repo := Repository{
				Name:  node.Name,
				Stars: int64(node.Stargazers.TotalCount),
				Forks: int64(node.ForkCount),
			}
			for _, edge := range node.Languages.Edges {
				repo.Languages = append(repo.Languages, LanguageEdge{
					Name:  edge.Node.Name,
					Color: edge.Node.Color,
					Size:  int64(edge.Size),
				})
			}
			result.Repositories = append(result.Repositories, repo)
		}
		result.TotalPullRequests = int64(query.User.PullRequests.TotalCount)
		result.OpenIssues = int64(query.User.OpenIssues.TotalCount)
		result.ClosedIssues = int64(query.User.ClosedIssues.TotalCount)

		pageInfo := query.User.Repositories.PageInfo
		if !pageInfo.HasNextPage {
			return result, nil
		}
		if pageInfo.EndCursor == "" {
			return RepositoriesResult{}, fmt.Errorf("query repositories of %q: next page reported without cursor", trimmed)
		}
		variables["cursor"] = githubv4.NewString(pageInfo.EndCursor)
	}
}

type contributionsQuery struct {
	User struct {
		ContributionsCollection struct {
			TotalCommitContributions            int
			TotalIssueContributions             int
			TotalRepositoryContributions        int
			TotalPullRequestContributions       int
			TotalPullRequestReviewContributions int
			RestrictedContributionsCount        int
			ContributionCalendar                struct {
				TotalContributions int
				Weeks              []struct {
					ContributionDays []struct {
						ContributionCount int
						Date              string
					}
				}
			}
			CommitContributionsByRepository []struct {
				Contributions struct {
					TotalCount int
				}
				Repository struct {
					Name  string
					Owner struct {
						Login string
					}
				}
			} `graphql:"commitContributionsByRepository(maxRepositories: 100)"`
		} `graphql:"contributionsCollection(from: $from, to: $to)"`
	} `graphql:"user(login: $login)"`
}

// GetContributionsCollection reads the contributions of login in [from, to).
// The query is bound to login, not to the credential's owner, so identities
// sharing a token still read their own calendars. GitHub rejects windows
// longer than one year.
func (c *GraphQLClient) GetContributionsCollection(ctx context.Context, login string, from, to time.Time) (collection ContributionsCollection, err error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return ContributionsCollection{}, fmt.Errorf("login is required")
	}
	if to.Before(from) {
		return ContributionsCollection{}, fmt.Errorf("contributions window ends before it starts")
	}

	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "githubapi.graphql.contributions",
		attribute.String("github.login", trimmed),
		attribute.String("github.from", from.UTC().Format(time.RFC3339)),
		attribute.String("github.to", to.UTC().Format(time.RFC3339)))
	defer func() { telemetry.EndSpan(span, err) }()

	var query contributionsQuery
	variables := map[string]any{
		"login": githubv4.String(trimmed),
		"from":  githubv4.DateTime{Time: from.UTC()},
		"to":    githubv4.DateTime{Time: to.UTC()},
	}
	if err := c.client.Query(ctx, &query, variables); err != nil {
		return ContributionsCollection{}, fmt.Errorf("query contributions collection of %q: %w", trimmed, err)
	}

	payload := query.User.ContributionsCollection
	collection = ContributionsCollection{
		TotalCommitContributions:            int64(payload.TotalCommitContributions),
		TotalIssueContributions:             int64(payload.TotalIssueContributions),
		TotalRepositoryContributions:        int64(payload.TotalRepositoryContributions),
		TotalPullRequestContributions:       int64(payload.TotalPullRequestContributions),
		TotalPullRequestReviewContributions: int64(payload.TotalPullRequestReviewContributions),
		RestrictedContributionsCount:        int64(payload.RestrictedContributionsCount),
		ContributionCalendar: ContributionCalendar{
			TotalContributions: int64(payload.ContributionCalendar.TotalContributions),
			Weeks:              make([]CalendarWeek, 0, len(payload.ContributionCalendar.Weeks)),
		},
	}
	for _, week := range payload.ContributionCalendar.Weeks {
		days := make([]CalendarDay, 0, len(week.ContributionDays))
		for _, day := range week.ContributionDays {
			days = append(days, CalendarDay{Date: day.Date, ContributionCount: day.ContributionCount})
		}
		collection.ContributionCalendar.Weeks = append(collection.ContributionCalendar.Weeks, CalendarWeek{ContributionDays: days})
	}
	for _, entry := range payload.CommitContributionsByRepository {
		collection.CommitContributionsByRepository = append(collection.CommitContributionsByRepository, RepositoryContribution{
			Owner:         entry.Repository.Owner.Login,
			Repository:    entry.Repository.Name,
			Contributions: int64(entry.Contributions.TotalCount),
		})
	}
	return collection, nil
}
