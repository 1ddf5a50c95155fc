package stats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidInput is wrapped by errors caused by the caller's request.
var ErrInvalidInput = errors.New("invalid input")

// ClientProvider resolves the data client bound to one identity's credential.
// It must not perform network calls.
type ClientProvider interface {
	ClientFor(username string) (DataClient, error)
}

// Cache stores merged records between requests. Implementations apply their
// own expiry.
type Cache interface {
	Get(ctx context.Context, key string) (UserStats, bool, error)
	Set(ctx context.Context, key string, value UserStats) error
}

// SnapshotFetcher reads a previously published record for one user.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, username string) (UserStats, error)
}

// ServiceOptions wires a Service. Provider is required.
type ServiceOptions struct {
	Provider   ClientProvider
	Cache      Cache
	Snapshots  SnapshotFetcher
	Logger     *zap.Logger
	Metrics    *Metrics
	Aggregator AggregatorOptions
	// Primary names the identity whose name and avatar a merged record carries.
	// When empty or not requested, the first requested username is used.
	Primary string
	// RequestBudget bounds one Compute call. Zero means no bound beyond ctx.
	RequestBudget time.Duration
	Now           func() time.Time
}

// Service computes normalized aggregate stats for a set of usernames.
type Service struct {
	provider   ClientProvider
	cache      Cache
	snapshots  SnapshotFetcher
	logger     *zap.Logger
	metrics    *Metrics
	aggregator AggregatorOptions
	primary    string
	budget     time.Duration
	now        func() time.Time
}

// NewService creates a Service.
func NewService(options ServiceOptions) (*Service, error) {
	if options.Provider == nil {
		return nil, fmt.Errorf("client provider is required")
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Service{
		provider:   options.Provider,
		cache:      options.Cache,
		snapshots:  options.Snapshots,
		logger:     options.Logger,
		metrics:    options.Metrics,
		aggregator: options.Aggregator,
		primary:    strings.TrimSpace(options.Primary),
		budget:     options.RequestBudget,
		now:        options.Now,
	}, nil
}

// Compute aggregates every user concurrently and returns one merged and
// normalized record. Any user's failure fails the whole call.
func (s *Service) Compute(ctx context.Context, usernames []string) (UserStats, error) {
	names, err := normalizeUsernames(usernames)
	if err != nil {
		return UserStats{}, err
	}
	primary := s.primaryFor(names)

	clients := make([]DataClient, len(names))
	for i, name := range names {
		client, err := s.provider.ClientFor(name)
		if err != nil {
			return UserStats{}, &CredentialError{Identity: name, Err: err}
		}
		clients[i] = client
	}

	key := cacheKey("live", names, primary)
	if cached, ok := s.lookup(ctx, key); ok {
		return cached, nil
	}

	ctx, cancel := s.withBudget(ctx)
	defer cancel()

	records := make([]UserStats, len(names))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		aggregator := NewAggregator(clients[i], s.aggregator, s.logger, s.metrics)
		aggregator.now = s.now
		group.Go(func() error {
			record, err := aggregator.Aggregate(groupCtx, name)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		s.logger.Warn("stats aggregation failed", zap.Strings("usernames", names), zap.Error(err))
		return UserStats{}, err
	}

	result, err := s.finalize(primary, records)
	if err != nil {
		return UserStats{}, err
	}
	s.store(ctx, key, result)
	return result, nil
}

// ComputeFromSnapshots merges the records users have already published
// instead of querying GitHub. No credentials are needed.
func (s *Service) ComputeFromSnapshots(ctx context.Context, usernames []string) (UserStats, error) {
	if s.snapshots == nil {
		return UserStats{}, fmt.Errorf("snapshot source is not configured")
	}
	names, err := normalizeUsernames(usernames)
	if err != nil {
		return UserStats{}, err
	}
	primary := s.primaryFor(names)

	key := cacheKey("snapshot", names, primary)
	if cached, ok := s.lookup(ctx, key); ok {
		return cached, nil
	}

	ctx, cancel := s.withBudget(ctx)
	defer cancel()

	records := make([]UserStats, len(names))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		group.Go(func() error {
			record, err := s.snapshots.Fetch(groupCtx, name)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return UserStats{}, err
	}

	result, err := s.finalize(primary, records)
	if err != nil {
		return UserStats{}, err
	}
	s.store(ctx, key, result)
	return result, nil
}

// finalize merges records and applies calendar, language and streak normalization.
func (s *Service) finalize(primary string, records []UserStats) (UserStats, error) {
	merged, err := Merge(primary, records)
	if err != nil {
		return UserStats{}, err
	}
	merged.ContributionData = NormalizeCalendar(merged.ContributionData)
	merged.TopLanguages = NormalizeLanguages(merged.TopLanguages)
	streak := ComputeStreak(merged.ContributionData, s.now())
	merged.Streak = &streak
	return merged, nil
}

func (s *Service) primaryFor(names []string) string {
	if s.primary != "" {
		for _, name := range names {
			if strings.EqualFold(name, s.primary) {
				return name
			}
		}
	}
	return names[0]
}

func (s *Service) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.budget)
}

func (s *Service) lookup(ctx context.Context, key string) (UserStats, bool) {
	if s.cache == nil {
		return UserStats{}, false
	}
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.observeCache("error")
		s.logger.Warn("stats cache lookup failed", zap.String("key", key), zap.Error(err))
		return UserStats{}, false
	}
	if !ok {
		s.metrics.observeCache("miss")
		return UserStats{}, false
	}
	s.metrics.observeCache("hit")
	return cached.Clone(), true
}

func (s *Service) store(ctx context.Context, key string, value UserStats) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value.Clone()); err != nil {
		s.metrics.observeCache("error")
		s.logger.Warn("stats cache store failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.metrics.observeCache("store")
}

// normalizeUsernames trims names and drops case-insensitive duplicates while
// keeping request order.
func normalizeUsernames(usernames []string) ([]string, error) {
	names := make([]string, 0, len(usernames))
	seen := make(map[string]struct{}, len(usernames))
	for i, raw := range usernames {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("%w: username at position %d is empty", ErrInvalidInput, i)
		}
		folded := strings.ToLower(name)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one username is required", ErrInvalidInput)
	}
	return names, nil
}

func cacheKey(source string, names []string, primary string) string {
	folded := make([]string, len(names))
	for i, name := range names {
		folded[i] = strings.ToLower(name)
	}
	slices.Sort(folded)
	return source + ":" + strings.Join(folded, ",") + "@" + strings.ToLower(primary)
}
