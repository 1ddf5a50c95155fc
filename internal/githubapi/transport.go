package githubapi

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// RoundTripper exposes the retrying Client as an http.RoundTripper so that
// go-github and githubv4 share its retry and rate-limit handling.
type RoundTripper struct {
	client *Client
}

// NewRoundTripper wraps a Client for use as an http.Client transport.
func NewRoundTripper(client *Client) *RoundTripper {
	return &RoundTripper{client: client}
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, _, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("round trip %s %s: nil response", req.Method, req.URL.Redacted())
	}
	return resp, nil
}

// ThrottledTransport waits on a shared token bucket before each request.
type ThrottledTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewThrottledTransport limits base to requestsPerSecond with the given burst.
// A non-positive rate disables throttling.
func NewThrottledTransport(base http.RoundTripper, requestsPerSecond float64, burst int) *ThrottledTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledTransport{
		base:    base,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}
	return t.base.RoundTrip(req)
}
