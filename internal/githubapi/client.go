package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github-stats-card/internal/githubapi"

// RetryConfig configures GitHub client retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps GitHub HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Sleep waits between attempts and returns early when ctx ends.
	Sleep func(ctx context.Context, duration time.Duration) error
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      sleepContext,
	}
}

// Do executes a request with retry and rate-limit awareness. Requests with a
// body are replayed through req.GetBody on later attempts.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.DependencySpansEnabled() {
		ctx, span = otel.Tracer(tracerName).Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt

		nextReq, err := cloneForAttempt(ctx, req, attempt)
		if err != nil {
			return nil, metadata, err
		}
		resp, err := c.doer.Do(nextReq)
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == c.retry.MaxAttempts || ctx.Err() != nil {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return nil, metadata, err
			}
			if sleepErr := c.Sleep(ctx, backoffForAttempt(c.retry, attempt)); sleepErr != nil {
				return nil, metadata, sleepErr
			}
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.Int64("github.rate_limit_reset_unix", headers.ResetUnix),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		if !decision.Allow {
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, "rate-limited")
				}
				return resp, metadata, nil
			}
			closeBody(resp)
			if sleepErr := c.Sleep(ctx, decision.WaitFor); sleepErr != nil {
				return nil, metadata, sleepErr
			}
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("transient status %d", resp.StatusCode))
				}
				return resp, metadata, nil
			}
			closeBody(resp)
			if sleepErr := c.Sleep(ctx, backoffForAttempt(c.retry, attempt)); sleepErr != nil {
				return nil, metadata, sleepErr
			}
			continue
		}

		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return resp, metadata, nil
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

func cloneForAttempt(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	next := req.Clone(ctx)
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed for attempt %d", attempt)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	next.Body = body
	return next, nil
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
