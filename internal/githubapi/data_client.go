package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const defaultGitHubAPIBaseURL = "https://api.github.com/"

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusAccepted indicates GitHub accepted the request and is still computing results.
	EndpointStatusAccepted EndpointStatus = "accepted"
	// EndpointStatusNoContent indicates an empty successful response, as for repositories without commits.
	EndpointStatusNoContent EndpointStatus = "no_content"
	// EndpointStatusForbidden indicates authorization failure or restricted access.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict indicates a state conflict, like unsupported stats on empty repositories.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnprocessable indicates request validation/processing failure.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// Empty reports whether the status means the repository has no statistics to
// report, as opposed to a failed or pending request.
func (s EndpointStatus) Empty() bool {
	switch s {
	case EndpointStatusNoContent, EndpointStatusNotFound, EndpointStatusConflict, EndpointStatusUnprocessable:
		return true
	}
	return false
}

// ContributorWeek is one contributor weekly summary from contributor stats.
type ContributorWeek struct {
	WeekStart time.Time
	Additions int64
	Deletions int64
	Changes   int64
}

// ContributorStats is one contributor's aggregate stats payload.
type ContributorStats struct {
	User         string
	TotalCommits int64
	Weeks        []ContributorWeek
}

// ContributorStatsResult is the typed result for `/stats/contributors`.
type ContributorStatsResult struct {
	Status       EndpointStatus
	StatusCode   int
	Contributors []ContributorStats
	// Pending is set when GitHub was still computing the statistics after
	// every poll attempt was spent.
	Pending  bool
	Polls    int
	Metadata CallMetadata
}

// DataClient is a typed GitHub REST client for endpoints go-github does not
// model the way the aggregator needs.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// GetContributorStats reads contributor weekly stats for one repository in a
// single request. A 202 response is reported as EndpointStatusAccepted.
func (c *DataClient) GetContributorStats(ctx context.Context, owner, repo string) (result ContributorStatsResult, err error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return ContributorStatsResult{}, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return ContributorStatsResult{}, fmt.Errorf("repo is required")
	}

	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "githubapi.rest.contributor_stats",
		attribute.String("github.repo", trimmedOwner+"/"+trimmedRepo))
	defer func() { telemetry.EndSpan(span, err) }()

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(
		reqURL.Path,
		"repos",
		trimmedOwner,
		trimmedRepo,
		"stats",
		"contributors",
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return ContributorStatsResult{}, fmt.Errorf("build contributor stats request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return ContributorStatsResult{}, fmt.Errorf("contributor stats request failed: %w", err)
	}
	if resp == nil {
		return ContributorStatsResult{}, fmt.Errorf("contributor stats request failed: nil response")
	}

	result = ContributorStatsResult{
		Status:     endpointStatusFromHTTP(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Metadata:   metadata,
	}
	if result.Status != EndpointStatusOK {
		_ = resp.Body.Close()
		return result, nil
	}

	payload, err := decodeContributorStats(resp)
	if err != nil {
		return ContributorStatsResult{}, fmt.Errorf("decode contributor stats response: %w", err)
	}
	for _, contributor := range payload {
		typed := ContributorStats{
			TotalCommits: contributor.Total,
		}
		if contributor.Author != nil {
			typed.User = contributor.Author.Login
		}
		for _, week := range contributor.Weeks {
			typed.Weeks = append(typed.Weeks, ContributorWeek{
				WeekStart: time.Unix(week.UnixWeek, 0).UTC(),
				Additions: week.Additions,
				Deletions: week.Deletions,
				Changes:   week.Changes,
			})
		}
		result.Contributors = append(result.Contributors, typed)
	}
	return result, nil
}

// decodeContributorStats accepts both the documented list shape and a bare
// single contributor object, and treats an empty body as no contributors.
func decodeContributorStats(resp *http.Response) ([]contributorStatsPayload, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var single contributorStatsPayload
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		return []contributorStatsPayload{single}, nil
	}

	var payload []contributorStatsPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusAccepted:
		return EndpointStatusAccepted
	case http.StatusNoContent:
		return EndpointStatusNoContent
	case http.StatusForbidden:
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

func mergeMetadata(current CallMetadata, incoming CallMetadata) CallMetadata {
	current.Attempts += incoming.Attempts
	current.LastRateHeaders = incoming.LastRateHeaders
	current.LastDecision = incoming.LastDecision
	return current
}

type contributorStatsPayload struct {
	Total  int64                `json:"total"`
	Author *userPayload         `json:"author"`
	Weeks  []contributorWeekDTO `json:"weeks"`
}

type contributorWeekDTO struct {
	UnixWeek  int64 `json:"w"`
	Additions int64 `json:"a"`
	Deletions int64 `json:"d"`
	Changes   int64 `json:"c"`
}

type userPayload struct {
	Login string `json:"login"`
}
