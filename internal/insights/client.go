// Package insights asks an OpenAI-compatible chat endpoint to summarize a
// UserStats record and validates what comes back.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/config"
	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "github-stats-card/internal/insights"

// Options configures a Client.
type Options struct {
	BaseURL  string
	Model    string
	APIKey   string
	SiteURL  string
	SiteName string
	Timeout  time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// OptionsFromConfig resolves the API key from the environment variable named
// by cfg.APIKeyEnv through lookup.
func OptionsFromConfig(cfg config.InsightsConfig, lookup func(string) (string, bool), logger *zap.Logger) Options {
	key := ""
	if lookup != nil && cfg.APIKeyEnv != "" {
		if value, ok := lookup(cfg.APIKeyEnv); ok {
			key = strings.TrimSpace(value)
		}
	}
	return Options{
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   key,
		SiteURL:  cfg.SiteURL,
		SiteName: cfg.SiteName,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	}
}

// Client requests insights for aggregated stats.
type Client struct {
	api    *openai.Client
	model  string
	parser *Parser
	logger *zap.Logger
}

// NewClient creates a Client. A missing API key is a *stats.CredentialError.
func NewClient(options Options) (*Client, error) {
	if strings.TrimSpace(options.APIKey) == "" {
		return nil, &stats.CredentialError{Identity: "insights", Err: errors.New("api key is not set")}
	}
	if strings.TrimSpace(options.Model) == "" {
		return nil, fmt.Errorf("insights model is required")
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	transport := options.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	clientConfig := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(options.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: options.Timeout,
		Transport: &attributionTransport{
			base:     transport,
			siteURL:  options.SiteURL,
			siteName: options.SiteName,
		},
	}

	return &Client{
		api:    openai.NewClientWithConfig(clientConfig),
		model:  options.Model,
		parser: NewParser(options.Logger),
		logger: options.Logger,
	}, nil
}

// Generate sends record to the model and returns the validated answer.
func (c *Client) Generate(ctx context.Context, record stats.UserStats) (response Response, err error) {
	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "insights.chat_completion",
		attribute.String("insights.model", c.model),
		attribute.String("github.login", record.Username),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	prompt, err := buildPrompt(record)
	if err != nil {
		return Response{}, err
	}

	completion, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Response{}, &stats.UpstreamRequestError{Op: "insights.chat_completion", Username: record.Username, Err: err}
	}
	if len(completion.Choices) == 0 {
		return Response{}, &stats.MalformedUpstreamResponse{Source: "insights", Reason: "response has no choices"}
	}

	c.logger.Debug("insights completion received",
		zap.String("username", record.Username),
		zap.String("model", completion.Model),
		zap.Int("completion_tokens", completion.Usage.CompletionTokens),
	)
	return c.parser.Parse(completion.Choices[0].Message.Content)
}

func buildPrompt(record stats.UserStats) (string, error) {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode stats for prompt: %w", err)
	}
	var prompt strings.Builder
	prompt.WriteString("Based on the following GitHub user statistics:\n")
	prompt.Write(payload)
	prompt.WriteString(`

Respond with a single JSON object with two keys:
1. "insightsText": a 2-3 sentence encouraging summary of notable achievements or patterns.
2. "visualParams": an object with "colors" (3 to 5 hex colors like "#3178c6" reflecting the profile),
   "animationSpeed" ("slow", "medium" or "fast") and "animationIntensity" ("calm", "moderate" or "energetic").
`)
	return prompt.String(), nil
}

// attributionTransport adds the OpenRouter app attribution headers.
type attributionTransport struct {
	base     http.RoundTripper
	siteURL  string
	siteName string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.siteURL == "" && t.siteName == "" {
		return t.base.RoundTrip(req)
	}
	cloned := req.Clone(req.Context())
	if t.siteURL != "" {
		cloned.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		cloned.Header.Set("X-Title", t.siteName)
	}
	return t.base.RoundTrip(cloned)
}
