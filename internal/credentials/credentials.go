package credentials

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cam3ron2/github-stats-card/internal/config"
	"github.com/cam3ron2/github-stats-card/internal/githubapi"
	"github.com/cam3ron2/github-stats-card/internal/stats"
	"go.uber.org/zap"
)

// FallbackTokenEnv is read when no identity-specific token variable is set.
const FallbackTokenEnv = "GITHUB_TOKEN"

// ErrNoCredential reports an identity without a token or app installation.
var ErrNoCredential = errors.New("no credential configured")

// Kind names how a Credential authenticates.
type Kind string

const (
	// KindToken is a personal access token.
	KindToken Kind = "token"
	// KindApp is a GitHub App installation.
	KindApp Kind = "app"
)

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Credential authenticates requests made on behalf of one identity.
type Credential struct {
	Login  string
	Kind   Kind
	Source string
	token  string
	app    githubapi.InstallationAuthConfig
}

// HTTPClient builds an authenticated client whose requests pass through base.
func (c Credential) HTTPClient(base http.RoundTripper, timeout time.Duration) (*http.Client, error) {
	switch c.Kind {
	case KindToken:
		return githubapi.NewTokenHTTPClient(githubapi.TokenAuthConfig{
			Token:         c.token,
			Timeout:       timeout,
			BaseTransport: base,
		})
	case KindApp:
		app := c.app
		app.Timeout = timeout
		app.BaseTransport = base
		return githubapi.NewInstallationHTTPClient(app)
	}
	return nil, fmt.Errorf("credential for %q: unsupported kind %q", c.Login, c.Kind)
}

// TokenEnvName is the per-identity token variable, e.g. GITHUB_TOKEN_OCTO_CAT
// for "octo-cat".
func TokenEnvName(login string) string {
	var builder strings.Builder
	builder.WriteString(FallbackTokenEnv)
	builder.WriteByte('_')
	for _, r := range strings.TrimSpace(login) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			builder.WriteRune(unicode.ToUpper(r))
			continue
		}
		builder.WriteByte('_')
	}
	return builder.String()
}

// Store maps identities to credentials. It is the explicit replacement for a
// single process-wide token.
type Store struct {
	configured map[string]config.CredentialConfig
	lookup     LookupFunc
}

// NewStore creates a Store over configured credentials. A nil lookup reads
// the process environment.
func NewStore(configured map[string]config.CredentialConfig, lookup LookupFunc) *Store {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	normalized := make(map[string]config.CredentialConfig, len(configured))
	for login, cred := range configured {
		normalized[strings.ToLower(strings.TrimSpace(login))] = cred
	}
	return &Store{configured: normalized, lookup: lookup}
}

// For resolves the credential of login. App installations win over tokens;
// tokens come from the configured variable, then TokenEnvName(login), then
// FallbackTokenEnv.
func (s *Store) For(login string) (Credential, error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return Credential{}, fmt.Errorf("login is required")
	}

	configured, hasConfig := s.configured[strings.ToLower(trimmed)]
	if hasConfig && configured.IsApp() {
		return Credential{
			Login:  trimmed,
			Kind:   KindApp,
			Source: configured.PrivateKeyPath,
			app: githubapi.InstallationAuthConfig{
				AppID:          configured.AppID,
				InstallationID: configured.InstallationID,
				PrivateKeyPath: configured.PrivateKeyPath,
			},
		}, nil
	}

	candidates := []string{TokenEnvName(trimmed), FallbackTokenEnv}
	if hasConfig && configured.TokenEnv != "" {
		candidates = []string{configured.TokenEnv}
	}
	for _, key := range candidates {
		if value, ok := s.lookup(key); ok && strings.TrimSpace(value) != "" {
			return Credential{
				Login:  trimmed,
				Kind:   KindToken,
				Source: key,
				token:  strings.TrimSpace(value),
			}, nil
		}
	}
	return Credential{}, fmt.Errorf("%w (checked %s)", ErrNoCredential, strings.Join(candidates, ", "))
}

// Provider hands out one Gateway per identity, built lazily and reused.
type Provider struct {
	store   *Store
	gateway githubapi.GatewayConfig
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*githubapi.Gateway
}

// NewProvider creates a provider that builds gateways with cfg.
func NewProvider(store *Store, cfg githubapi.GatewayConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		store:   store,
		gateway: cfg,
		logger:  logger,
		clients: map[string]*githubapi.Gateway{},
	}
}

// ClientFor returns the data client bound to username's credential.
func (p *Provider) ClientFor(username string) (stats.DataClient, error) {
	key := strings.ToLower(strings.TrimSpace(username))

	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[key]; ok {
		return client, nil
	}

	credential, err := p.store.For(username)
	if err != nil {
		return nil, err
	}
	gateway, err := githubapi.NewGateway(credential, p.gateway, p.logger.With(zap.String("username", key)))
	if err != nil {
		return nil, err
	}
	p.logger.Debug("github credential resolved",
		zap.String("username", key),
		zap.String("kind", string(credential.Kind)),
		zap.String("source", credential.Source),
	)
	p.clients[key] = gateway
	return gateway, nil
}
