package githubapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type scriptedStatsSource struct {
	results []ContributorStatsResult
	errs    []error
	calls   int
}

func (s *scriptedStatsSource) GetContributorStats(_ context.Context, _, _ string) (ContributorStatsResult, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return ContributorStatsResult{}, s.errs[idx]
	}
	if idx < len(s.results) {
		return s.results[idx], nil
	}
	return ContributorStatsResult{Status: EndpointStatusAccepted, StatusCode: 202}, nil
}

func accepted() ContributorStatsResult {
	return ContributorStatsResult{
		Status:     EndpointStatusAccepted,
		StatusCode: 202,
		Metadata:   CallMetadata{Attempts: 1},
	}
}

func TestStatsPollerGetContributorStats(t *testing.T) {
	t.Parallel()

	ready := ContributorStatsResult{
		Status:       EndpointStatusOK,
		StatusCode:   200,
		Contributors: []ContributorStats{{User: "alice"}},
		Metadata:     CallMetadata{Attempts: 2},
	}

	testCases := []struct {
		name        string
		source      *scriptedStatsSource
		config      PollConfig
		wantStatus  EndpointStatus
		wantPending bool
		wantPolls   int
		wantSleeps  []time.Duration
		wantAttempt int
	}{
		{
			name:        "ready_on_first_request",
			source:      &scriptedStatsSource{results: []ContributorStatsResult{ready}},
			config:      PollConfig{MaxAttempts: 4, InitialBackoff: time.Second, MaxBackoff: 8 * time.Second},
			wantStatus:  EndpointStatusOK,
			wantPolls:   1,
			wantAttempt: 2,
		},
		{
			name:        "ready_after_backoff",
			source:      &scriptedStatsSource{results: []ContributorStatsResult{accepted(), accepted(), ready}},
			config:      PollConfig{MaxAttempts: 4, InitialBackoff: time.Second, MaxBackoff: 8 * time.Second},
			wantStatus:  EndpointStatusOK,
			wantPolls:   3,
			wantSleeps:  []time.Duration{time.Second, 2 * time.Second},
			wantAttempt: 4,
		},
		{
			name:        "pending_after_attempts_run_out",
			source:      &scriptedStatsSource{results: []ContributorStatsResult{accepted(), accepted(), accepted(), accepted()}},
			config:      PollConfig{MaxAttempts: 4, InitialBackoff: 2 * time.Second, MaxBackoff: 5 * time.Second},
			wantStatus:  EndpointStatusAccepted,
			wantPending: true,
			wantPolls:   4,
			wantSleeps:  []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second},
			wantAttempt: 4,
		},
		{
			name: "empty_status_stops_polling",
			source: &scriptedStatsSource{results: []ContributorStatsResult{
				accepted(),
				{Status: EndpointStatusNoContent, StatusCode: 204, Metadata: CallMetadata{Attempts: 1}},
			}},
			config:      PollConfig{MaxAttempts: 5, InitialBackoff: time.Second},
			wantStatus:  EndpointStatusNoContent,
			wantPolls:   2,
			wantSleeps:  []time.Duration{time.Second},
			wantAttempt: 2,
		},
		{
			name:        "zero_attempts_means_single_request",
			source:      &scriptedStatsSource{results: []ContributorStatsResult{accepted()}},
			config:      PollConfig{},
			wantStatus:  EndpointStatusAccepted,
			wantPending: true,
			wantPolls:   1,
			wantAttempt: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var sleeps []time.Duration
			poller := NewStatsPoller(tc.source, tc.config, zap.NewNop())
			poller.Sleep = func(_ context.Context, duration time.Duration) error {
				sleeps = append(sleeps, duration)
				return nil
			}

			got, err := poller.GetContributorStats(context.Background(), "alice", "card")
			if err != nil {
				t.Fatalf("GetContributorStats() unexpected error: %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("Status = %q, want %q", got.Status, tc.wantStatus)
			}
			if got.Pending != tc.wantPending {
				t.Fatalf("Pending = %t, want %t", got.Pending, tc.wantPending)
			}
			if got.Polls != tc.wantPolls {
				t.Fatalf("Polls = %d, want %d", got.Polls, tc.wantPolls)
			}
			if got.Metadata.Attempts != tc.wantAttempt {
				t.Fatalf("Metadata.Attempts = %d, want %d", got.Metadata.Attempts, tc.wantAttempt)
			}
			if tc.source.calls != tc.wantPolls {
				t.Fatalf("source calls = %d, want %d", tc.source.calls, tc.wantPolls)
			}
			if len(sleeps) != len(tc.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", sleeps, tc.wantSleeps)
			}
			for i := range sleeps {
				if sleeps[i] != tc.wantSleeps[i] {
					t.Fatalf("sleeps[%d] = %s, want %s", i, sleeps[i], tc.wantSleeps[i])
				}
			}
		})
	}
}

func TestStatsPollerPropagatesErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	poller := NewStatsPoller(&scriptedStatsSource{
		results: []ContributorStatsResult{accepted()},
		errs:    []error{nil, boom},
	}, PollConfig{MaxAttempts: 3}, nil)
	poller.Sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := poller.GetContributorStats(context.Background(), "alice", "card"); !errors.Is(err, boom) {
		t.Fatalf("GetContributorStats() error = %v, want %v", err, boom)
	}
}

func TestStatsPollerStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	source := &scriptedStatsSource{}
	poller := NewStatsPoller(source, PollConfig{MaxAttempts: 10, InitialBackoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := poller.GetContributorStats(ctx, "alice", "card"); !errors.Is(err, context.Canceled) {
		t.Fatalf("GetContributorStats() error = %v, want context.Canceled", err)
	}
	if source.calls != 1 {
		t.Fatalf("source calls = %d, want 1", source.calls)
	}
}
