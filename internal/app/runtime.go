package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/cache"
	"github.com/cam3ron2/github-stats-card/internal/config"
	"github.com/cam3ron2/github-stats-card/internal/credentials"
	"github.com/cam3ron2/github-stats-card/internal/exporter"
	"github.com/cam3ron2/github-stats-card/internal/githubapi"
	"github.com/cam3ron2/github-stats-card/internal/health"
	"github.com/cam3ron2/github-stats-card/internal/insights"
	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrInsightsDisabled is returned by Insights when the feature is turned off.
var ErrInsightsDisabled = errors.New("insights are disabled")

// RuntimeOptions overrides process-level dependencies.
type RuntimeOptions struct {
	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup credentials.LookupFunc
	// BaseTransport is the innermost HTTP transport for GitHub calls.
	BaseTransport http.RoundTripper
	// Cache replaces the backend selected by the configuration.
	Cache cache.Store
	// Insights replaces the configured insights client.
	Insights InsightsGenerator
}

// InsightsGenerator produces insights for an aggregated record.
type InsightsGenerator interface {
	Generate(ctx context.Context, record stats.UserStats) (insights.Response, error)
}

// Runtime owns the long-lived components behind the CLI and HTTP surface.
type Runtime struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	credentials *credentials.Store
	service     *stats.Service
	cache       cache.Store
	recorder    *exporter.Recorder
	evaluator   *health.StatusEvaluator

	insights    InsightsGenerator
	insightsErr error

	githubHealthy atomic.Bool

	handlerOnce sync.Once
	handler     http.Handler
}

// GatewayConfig maps configuration onto the GitHub gateway settings.
func GatewayConfig(cfg *config.Config) githubapi.GatewayConfig {
	return githubapi.GatewayConfig{
		APIBaseURL:        cfg.GitHub.APIBaseURL,
		GraphQLURL:        cfg.GitHub.GraphQLURL,
		RequestTimeout:    cfg.GitHub.RequestTimeout,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
		Retry: githubapi.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		RateLimit: githubapi.RateLimitPolicy{
			MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
			SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		},
		Poll: githubapi.PollConfig{
			MaxAttempts:    cfg.Stats.ContributorStatsAttempts,
			InitialBackoff: cfg.Stats.ContributorStatsInitialBackoff,
			MaxBackoff:     cfg.Stats.ContributorStatsMaxBackoff,
		},
	}
}

// NewRuntime wires every component from cfg.
func NewRuntime(cfg *config.Config, logger *zap.Logger, options RuntimeOptions) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.Lookup == nil {
		options.Lookup = os.LookupEnv
	}

	registry := prometheus.NewRegistry()
	metrics, err := stats.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	store := options.Cache
	if store == nil {
		store, err = cache.Open(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
	}

	gatewayConfig := GatewayConfig(cfg)
	gatewayConfig.BaseTransport = options.BaseTransport
	credentialStore := credentials.NewStore(cfg.Users.Credentials, options.Lookup)
	provider := credentials.NewProvider(credentialStore, gatewayConfig, logger)

	snapshotTransport := options.BaseTransport
	if snapshotTransport == nil {
		snapshotTransport = http.DefaultTransport
	}
	snapshotClient := githubapi.NewClient(
		&http.Client{Timeout: cfg.GitHub.RequestTimeout, Transport: snapshotTransport},
		gatewayConfig.Retry,
		gatewayConfig.RateLimit,
	)
	snapshots, err := stats.NewSnapshotSource(cfg.Stats.SnapshotURLTemplate, snapshotClient)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	serviceOptions := stats.ServiceOptions{
		Provider:  provider,
		Snapshots: snapshots,
		Logger:    logger,
		Metrics:   metrics,
		Aggregator: stats.AggregatorOptions{
			RepoConcurrency:    cfg.Stats.RepoConcurrency,
			FailOnPendingStats: cfg.Stats.FailOnPendingStats,
		},
		Primary:       cfg.Users.Primary,
		RequestBudget: cfg.Stats.RequestBudget,
	}
	if store != nil {
		serviceOptions.Cache = store
	}
	service, err := stats.NewService(serviceOptions)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	runtime := &Runtime{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		credentials: credentialStore,
		service:     service,
		cache:       store,
		recorder:    exporter.NewRecorder(),
		evaluator:   health.NewStatusEvaluator(),
	}
	runtime.githubHealthy.Store(true)

	switch {
	case options.Insights != nil:
		runtime.insights = options.Insights
	case cfg.Insights.Enabled:
		client, err := insights.NewClient(insights.OptionsFromConfig(cfg.Insights, options.Lookup, logger))
		if err != nil {
			logger.Warn("insights client unavailable", zap.Error(err))
			runtime.insightsErr = err
		} else {
			runtime.insights = client
		}
	default:
		runtime.insightsErr = ErrInsightsDisabled
	}

	return runtime, nil
}

// DefaultUsers returns the configured usernames.
func (r *Runtime) DefaultUsers() []string {
	return append([]string(nil), r.cfg.Users.Usernames...)
}

// Compute aggregates usernames live from GitHub.
func (r *Runtime) Compute(ctx context.Context, usernames []string) (stats.UserStats, error) {
	record, err := r.service.Compute(ctx, usernames)
	r.observe(record, err)
	return record, err
}

// ComputeFromSnapshots merges the records the users have published.
func (r *Runtime) ComputeFromSnapshots(ctx context.Context, usernames []string) (stats.UserStats, error) {
	record, err := r.service.ComputeFromSnapshots(ctx, usernames)
	if err == nil {
		r.recorder.Record(record)
	}
	return record, err
}

// Insights asks the configured model about record.
func (r *Runtime) Insights(ctx context.Context, record stats.UserStats) (insights.Response, error) {
	if r.insights == nil {
		return insights.Response{}, r.insightsErr
	}
	return r.insights.Generate(ctx, record)
}

func (r *Runtime) observe(record stats.UserStats, err error) {
	if err == nil {
		r.githubHealthy.Store(true)
		r.recorder.Record(record)
		return
	}
	if isUpstreamFailure(err) {
		r.githubHealthy.Store(false)
	}
}

// CurrentStatus implements health.Provider.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	credentialsReady := true
	for _, username := range r.cfg.Users.Usernames {
		if _, err := r.credentials.For(username); err != nil {
			credentialsReady = false
			break
		}
	}

	cacheHealthy := true
	if r.cache != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		cacheHealthy = r.cache.Ping(pingCtx) == nil
		cancel()
	}

	return r.evaluator.Evaluate(health.Input{
		CredentialsReady: credentialsReady,
		CacheHealthy:     cacheHealthy,
		GitHubHealthy:    r.githubHealthy.Load(),
		InsightsReady:    r.insights != nil || errors.Is(r.insightsErr, ErrInsightsDisabled),
	})
}

// Handler returns the combined HTTP handler. It is built once.
func (r *Runtime) Handler() http.Handler {
	r.handlerOnce.Do(func() {
		metricsHandler := exporter.NewOpenMetricsHandler(r.recorder, r.registry)
		healthHandler := health.NewHandler(r)
		r.handler = NewHTTPHandler(r, metricsHandler, healthHandler, r.logger)
	})
	return r.handler
}

// Serve runs the HTTP server until ctx ends, then shuts it down gracefully.
func (r *Runtime) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              r.cfg.Server.ListenAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server starting", zap.String("addr", r.cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	r.logger.Info("shutdown complete")
	return nil
}

// Close releases the cache backend.
func (r *Runtime) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

func closeStore(store cache.Store) {
	if store != nil {
		_ = store.Close()
	}
}
