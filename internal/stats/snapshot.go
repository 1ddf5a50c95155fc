package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cam3ron2/github-stats-card/internal/githubapi"
)

// DefaultSnapshotURLTemplate locates the stats file a user publishes in their
// own "stats" repository. {user} is replaced with the path-escaped username.
const DefaultSnapshotURLTemplate = "https://raw.githubusercontent.com/{user}/stats/main/github-user-stats.json"

const maxSnapshotBytes = 8 << 20

// SnapshotSource reads previously published UserStats records.
type SnapshotSource struct {
	template string
	client   *githubapi.Client
}

// NewSnapshotSource creates a snapshot source. An empty template selects
// DefaultSnapshotURLTemplate.
func NewSnapshotSource(template string, client *githubapi.Client) (*SnapshotSource, error) {
	if client == nil {
		return nil, fmt.Errorf("request client is required")
	}
	trimmed := strings.TrimSpace(template)
	if trimmed == "" {
		trimmed = DefaultSnapshotURLTemplate
	}
	if !strings.Contains(trimmed, "{user}") {
		return nil, fmt.Errorf("snapshot url template must contain {user}")
	}
	return &SnapshotSource{template: trimmed, client: client}, nil
}

// URLFor returns the snapshot location of username.
func (s *SnapshotSource) URLFor(username string) string {
	return strings.ReplaceAll(s.template, "{user}", url.PathEscape(username))
}

// Fetch downloads and decodes the published record of username.
func (s *SnapshotSource) Fetch(ctx context.Context, username string) (UserStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URLFor(username), nil)
	if err != nil {
		return UserStats{}, &UpstreamRequestError{Op: "fetch snapshot", Username: username, Err: err}
	}

	resp, _, err := s.client.Do(req)
	if err != nil {
		return UserStats{}, &UpstreamRequestError{Op: "fetch snapshot", Username: username, Err: err}
	}
	if resp == nil {
		return UserStats{}, &UpstreamRequestError{Op: "fetch snapshot", Username: username, Err: fmt.Errorf("nil response")}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UserStats{}, &UpstreamRequestError{
			Op:       "fetch snapshot",
			Username: username,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return UserStats{}, &UpstreamRequestError{Op: "fetch snapshot", Username: username, Err: err}
	}
	var record UserStats
	if err := json.Unmarshal(body, &record); err != nil {
		return UserStats{}, &MalformedUpstreamResponse{
			Source: "snapshot " + username,
			Reason: err.Error(),
		}
	}
	if record.Username == "" {
		record.Username = username
	}
	return record, nil
}
