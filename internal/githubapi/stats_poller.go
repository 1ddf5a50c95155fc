package githubapi

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ContributorStatsSource returns one contributor-stats response per call.
type ContributorStatsSource interface {
	GetContributorStats(ctx context.Context, owner, repo string) (ContributorStatsResult, error)
}

// PollConfig bounds how long a 202 contributor-stats response is waited on.
type PollConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StatsPoller repeats contributor-stats requests while GitHub answers 202,
// backing off exponentially, and reports the result as Pending once the
// attempts are spent.
type StatsPoller struct {
	source ContributorStatsSource
	config PollConfig
	logger *zap.Logger
	// Sleep waits between polls and returns early when ctx ends.
	Sleep func(ctx context.Context, duration time.Duration) error
}

// NewStatsPoller creates a poller over source.
func NewStatsPoller(source ContributorStatsSource, config PollConfig, logger *zap.Logger) *StatsPoller {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsPoller{
		source: source,
		config: config,
		logger: logger,
		Sleep:  sleepContext,
	}
}

// GetContributorStats polls until the statistics are ready, a non-202 status
// arrives, or the attempts run out.
func (p *StatsPoller) GetContributorStats(ctx context.Context, owner, repo string) (ContributorStatsResult, error) {
	retry := RetryConfig{
		MaxAttempts:    p.config.MaxAttempts,
		InitialBackoff: p.config.InitialBackoff,
		MaxBackoff:     p.config.MaxBackoff,
	}

	metadata := CallMetadata{}
	for attempt := 1; ; attempt++ {
		result, err := p.source.GetContributorStats(ctx, owner, repo)
		if err != nil {
			return ContributorStatsResult{}, err
		}
		metadata = mergeMetadata(metadata, result.Metadata)
		result.Metadata = metadata
		result.Polls = attempt

		if result.Status != EndpointStatusAccepted {
			return result, nil
		}
		if attempt >= p.config.MaxAttempts {
			result.Pending = true
			return result, nil
		}

		wait := backoffForAttempt(retry, attempt)
		p.logger.Debug("contributor stats still computing",
			zap.String("repo", owner+"/"+repo),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if err := p.Sleep(ctx, wait); err != nil {
			return ContributorStatsResult{}, err
		}
	}
}
