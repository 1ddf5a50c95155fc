package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override file settings.
const EnvPrefix = "GITHUB_STATS"

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validCacheBackends = []string{"none", "memory", "redis", "bolt"}
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	Users     UsersConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Stats     StatsConfig
	Cache     CacheConfig
	Insights  InsightsConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// GitHubConfig configures GitHub API endpoints and client-side throttling.
type GitHubConfig struct {
	APIBaseURL        string
	GraphQLURL        string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// UsersConfig lists the accounts to aggregate and how each authenticates.
type UsersConfig struct {
	Usernames []string
	// Primary selects the account whose profile fields head a merged record.
	Primary     string
	Credentials map[string]CredentialConfig
}

// CredentialConfig is either a token read from an environment variable or a
// GitHub App installation.
type CredentialConfig struct {
	TokenEnv       string `yaml:"token_env"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// IsApp reports whether the credential uses GitHub App installation auth.
func (c CredentialConfig) IsApp() bool {
	return c.AppID != 0 || c.InstallationID != 0 || strings.TrimSpace(c.PrivateKeyPath) != ""
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StatsConfig configures aggregation.
type StatsConfig struct {
	RepoConcurrency                int
	ContributorStatsAttempts       int
	ContributorStatsInitialBackoff time.Duration
	ContributorStatsMaxBackoff     time.Duration
	FailOnPendingStats             bool
	SnapshotURLTemplate            string
	RequestBudget                  time.Duration
}

// CacheConfig configures the aggregate result cache.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	Size          int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BoltPath      string
	BoltBucket    string
}

// InsightsConfig configures the chat-completion insights client.
type InsightsConfig struct {
	Enabled   bool
	BaseURL   string
	Model     string
	APIKeyEnv string
	SiteURL   string
	SiteName  string
	Timeout   time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	cfg, err := decode(reader)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the YAML file at path after loading envFiles (".env" when
// none are given) into the process environment. GITHUB_STATS_* variables
// override the matching file settings.
func LoadFile(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg, err := decode(file)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	return raw.toConfig(), nil
}

func loadEnvFiles(envFiles ...string) error {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(envFiles...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

type envOverrides struct {
	LogLevel      string   `envconfig:"LOG_LEVEL"`
	ListenAddr    string   `envconfig:"LISTEN_ADDR"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	Users         []string `envconfig:"USERS"`
}

func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := envconfig.Process(EnvPrefix, &overrides); err != nil {
		return fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}

	if overrides.LogLevel != "" {
		cfg.Server.LogLevel = overrides.LogLevel
	}
	if overrides.ListenAddr != "" {
		cfg.Server.ListenAddr = overrides.ListenAddr
	}
	if overrides.RedisPassword != "" {
		cfg.Cache.RedisPassword = overrides.RedisPassword
	}
	if len(overrides.Users) > 0 {
		cfg.Users.Usernames = trimAll(overrides.Users)
	}
	return nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if c.GitHub.RequestTimeout < 0 {
		errs = append(errs, "github.request_timeout must be >= 0")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, "github.requests_per_second must be >= 0")
	}
	if c.GitHub.Burst < 0 {
		errs = append(errs, "github.burst must be >= 0")
	}

	errs = append(errs, c.Users.validate()...)

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		errs = append(errs, "retry.max_backoff must be >= retry.initial_backoff")
	}

	if c.Stats.RepoConcurrency < 1 {
		errs = append(errs, "stats.repo_concurrency must be >= 1")
	}
	if c.Stats.ContributorStatsAttempts < 1 {
		errs = append(errs, "stats.contributor_stats_attempts must be >= 1")
	}
	if c.Stats.ContributorStatsMaxBackoff > 0 && c.Stats.ContributorStatsMaxBackoff < c.Stats.ContributorStatsInitialBackoff {
		errs = append(errs, "stats.contributor_stats_max_backoff must be >= stats.contributor_stats_initial_backoff")
	}
	if c.Stats.SnapshotURLTemplate != "" && !strings.Contains(c.Stats.SnapshotURLTemplate, "{user}") {
		errs = append(errs, "stats.snapshot_url_template must contain {user}")
	}
	if c.Stats.RequestBudget < 0 {
		errs = append(errs, "stats.request_budget must be >= 0")
	}

	if !slices.Contains(validCacheBackends, c.Cache.Backend) {
		errs = append(errs, "cache.backend must be one of none|memory|redis|bolt")
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must be >= 0")
	}
	switch c.Cache.Backend {
	case "memory":
		if c.Cache.Size < 1 {
			errs = append(errs, "cache.size must be >= 1 when cache.backend=memory")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required when cache.backend=redis")
		}
	case "bolt":
		if c.Cache.BoltPath == "" {
			errs = append(errs, "cache.bolt_path is required when cache.backend=bolt")
		}
	}

	if c.Insights.Enabled {
		if c.Insights.BaseURL == "" {
			errs = append(errs, "insights.base_url is required when insights.enabled=true")
		}
		if c.Insights.Model == "" {
			errs = append(errs, "insights.model is required when insights.enabled=true")
		}
	}

	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (u UsersConfig) validate() []string {
	var errs []string

	seen := make(map[string]struct{}, len(u.Usernames))
	for i, username := range u.Usernames {
		key := strings.ToLower(username)
		if key == "" {
			errs = append(errs, fmt.Sprintf("users.usernames[%d] is blank", i))
			continue
		}
		if _, ok := seen[key]; ok {
			errs = append(errs, "users.usernames contains duplicate user: "+username)
		}
		seen[key] = struct{}{}
	}
	if u.Primary != "" && len(u.Usernames) > 0 {
		if _, ok := seen[strings.ToLower(u.Primary)]; !ok {
			errs = append(errs, "users.primary must be one of users.usernames")
		}
	}

	logins := make([]string, 0, len(u.Credentials))
	for login := range u.Credentials {
		logins = append(logins, login)
	}
	slices.Sort(logins)
	for _, login := range logins {
		cred := u.Credentials[login]
		prefix := "users.credentials." + login
		if !cred.IsApp() {
			continue
		}
		if cred.TokenEnv != "" {
			errs = append(errs, prefix+" must set either token_env or app_id, not both")
		}
		if cred.AppID <= 0 {
			errs = append(errs, prefix+".app_id must be > 0")
		}
		if cred.InstallationID <= 0 {
			errs = append(errs, prefix+".installation_id must be > 0")
		}
		if strings.TrimSpace(cred.PrivateKeyPath) == "" {
			errs = append(errs, prefix+".private_key_path is required")
		}
	}
	return errs
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.RequestsPerSecond == 0 {
		cfg.GitHub.RequestsPerSecond = 10
	}
	if cfg.GitHub.Burst == 0 {
		cfg.GitHub.Burst = 10
	}
	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 50
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Stats.RepoConcurrency == 0 {
		cfg.Stats.RepoConcurrency = 8
	}
	if cfg.Stats.ContributorStatsAttempts == 0 {
		cfg.Stats.ContributorStatsAttempts = 5
	}
	if cfg.Stats.ContributorStatsInitialBackoff == 0 {
		cfg.Stats.ContributorStatsInitialBackoff = 2 * time.Second
	}
	if cfg.Stats.ContributorStatsMaxBackoff == 0 {
		cfg.Stats.ContributorStatsMaxBackoff = 16 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "none"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 128
	}
	if cfg.Cache.BoltBucket == "" {
		cfg.Cache.BoltBucket = "user_stats"
	}
	if cfg.Insights.BaseURL == "" {
		cfg.Insights.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Insights.Model == "" {
		cfg.Insights.Model = "mistralai/mistral-7b-instruct"
	}
	if cfg.Insights.APIKeyEnv == "" {
		cfg.Insights.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.Insights.SiteName == "" {
		cfg.Insights.SiteName = "github-stats-card"
	}
	if cfg.Insights.Timeout == 0 {
		cfg.Insights.Timeout = time.Minute
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "errors"
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// parseFlexibleDuration accepts time.ParseDuration input plus day (d) and
// week (w) suffixes.
func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	switch {
	case strings.HasSuffix(trimmed, "d"):
		return scaledDuration(strings.TrimSuffix(trimmed, "d"), 24)
	case strings.HasSuffix(trimmed, "w"):
		return scaledDuration(strings.TrimSuffix(trimmed, "w"), 24*7)
	}
	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func scaledDuration(numeric string, hours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * hours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    ServerConfig `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	Users     rawUsers     `yaml:"users"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Stats     rawStats     `yaml:"stats"`
	Cache     rawCache     `yaml:"cache"`
	Insights  rawInsights  `yaml:"insights"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL        string   `yaml:"api_base_url"`
	GraphQLURL        string   `yaml:"graphql_url"`
	RequestTimeout    duration `yaml:"request_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

type rawUsers struct {
	Usernames   []string                    `yaml:"usernames"`
	Primary     string                      `yaml:"primary"`
	Credentials map[string]CredentialConfig `yaml:"credentials"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawStats struct {
	RepoConcurrency                int      `yaml:"repo_concurrency"`
	ContributorStatsAttempts       int      `yaml:"contributor_stats_attempts"`
	ContributorStatsInitialBackoff duration `yaml:"contributor_stats_initial_backoff"`
	ContributorStatsMaxBackoff     duration `yaml:"contributor_stats_max_backoff"`
	FailOnPendingStats             bool     `yaml:"fail_on_pending_stats"`
	SnapshotURLTemplate            string   `yaml:"snapshot_url_template"`
	RequestBudget                  duration `yaml:"request_budget"`
}

type rawCache struct {
	Backend       string   `yaml:"backend"`
	TTL           duration `yaml:"ttl"`
	Size          int      `yaml:"size"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	BoltPath      string   `yaml:"bolt_path"`
	BoltBucket    string   `yaml:"bolt_bucket"`
}

type rawInsights struct {
	Enabled   bool     `yaml:"enabled"`
	BaseURL   string   `yaml:"base_url"`
	Model     string   `yaml:"model"`
	APIKeyEnv string   `yaml:"api_key_env"`
	SiteURL   string   `yaml:"site_url"`
	SiteName  string   `yaml:"site_name"`
	Timeout   duration `yaml:"timeout"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: strings.TrimSpace(r.Server.ListenAddr),
			LogLevel:   strings.ToLower(strings.TrimSpace(r.Server.LogLevel)),
		},
		GitHub: GitHubConfig{
			APIBaseURL:        strings.TrimSpace(r.GitHub.APIBaseURL),
			GraphQLURL:        strings.TrimSpace(r.GitHub.GraphQLURL),
			RequestTimeout:    r.GitHub.RequestTimeout.Duration,
			RequestsPerSecond: r.GitHub.RequestsPerSecond,
			Burst:             r.GitHub.Burst,
		},
		Users: UsersConfig{
			Usernames:   make([]string, 0, len(r.Users.Usernames)),
			Primary:     strings.TrimSpace(r.Users.Primary),
			Credentials: make(map[string]CredentialConfig, len(r.Users.Credentials)),
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Stats: StatsConfig{
			RepoConcurrency:                r.Stats.RepoConcurrency,
			ContributorStatsAttempts:       r.Stats.ContributorStatsAttempts,
			ContributorStatsInitialBackoff: r.Stats.ContributorStatsInitialBackoff.Duration,
			ContributorStatsMaxBackoff:     r.Stats.ContributorStatsMaxBackoff.Duration,
			FailOnPendingStats:             r.Stats.FailOnPendingStats,
			SnapshotURLTemplate:            strings.TrimSpace(r.Stats.SnapshotURLTemplate),
			RequestBudget:                  r.Stats.RequestBudget.Duration,
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(strings.TrimSpace(r.Cache.Backend)),
			TTL:           r.Cache.TTL.Duration,
			Size:          r.Cache.Size,
			RedisAddr:     strings.TrimSpace(r.Cache.RedisAddr),
			RedisPassword: r.Cache.RedisPassword,
			RedisDB:       r.Cache.RedisDB,
			BoltPath:      strings.TrimSpace(r.Cache.BoltPath),
			BoltBucket:    strings.TrimSpace(r.Cache.BoltBucket),
		},
		Insights: InsightsConfig{
			Enabled:   r.Insights.Enabled,
			BaseURL:   strings.TrimSpace(r.Insights.BaseURL),
			Model:     strings.TrimSpace(r.Insights.Model),
			APIKeyEnv: strings.TrimSpace(r.Insights.APIKeyEnv),
			SiteURL:   strings.TrimSpace(r.Insights.SiteURL),
			SiteName:  strings.TrimSpace(r.Insights.SiteName),
			Timeout:   r.Insights.Timeout.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        strings.TrimSpace(r.Telemetry.OTELTraceMode),
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}

	for _, username := range r.Users.Usernames {
		cfg.Users.Usernames = append(cfg.Users.Usernames, strings.TrimSpace(username))
	}
	for login, cred := range r.Users.Credentials {
		cred.TokenEnv = strings.TrimSpace(cred.TokenEnv)
		cred.PrivateKeyPath = strings.TrimSpace(cred.PrivateKeyPath)
		cfg.Users.Credentials[strings.ToLower(strings.TrimSpace(login))] = cred
	}

	return cfg
}
