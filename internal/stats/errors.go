package stats

import (
	"fmt"
	"strings"
)

// CredentialError reports an identity with no usable credential.
type CredentialError struct {
	Identity string
	Err      error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential for %q: %v", e.Identity, e.Err)
	}
	return fmt.Sprintf("no credential configured for %q", e.Identity)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// UpstreamRequestError reports a failed upstream call and the context it was made in.
type UpstreamRequestError struct {
	Op         string
	Username   string
	Repository string
	Year       int
	Err        error
}

func (e *UpstreamRequestError) Error() string {
	parts := make([]string, 0, 3)
	if e.Username != "" {
		parts = append(parts, "user="+e.Username)
	}
	if e.Repository != "" {
		parts = append(parts, "repo="+e.Repository)
	}
	if e.Year != 0 {
		parts = append(parts, fmt.Sprintf("year=%d", e.Year))
	}
	scope := ""
	if len(parts) > 0 {
		scope = " (" + strings.Join(parts, " ") + ")"
	}
	return fmt.Sprintf("%s failed%s: %v", e.Op, scope, e.Err)
}

func (e *UpstreamRequestError) Unwrap() error {
	return e.Err
}

// YearFetchError reports a contributions window that could not be fetched.
type YearFetchError struct {
	Year int
	Err  error
}

func (e *YearFetchError) Error() string {
	return fmt.Sprintf("fetch contributions for year %d: %v", e.Year, e.Err)
}

func (e *YearFetchError) Unwrap() error {
	return e.Err
}

// AllYearsFailedError reports that no contributions window produced data.
type AllYearsFailedError struct{}

func (e *AllYearsFailedError) Error() string {
	return "fetch contributions: no year produced data"
}

// MalformedUpstreamResponse reports a payload that lacks its expected shape.
type MalformedUpstreamResponse struct {
	Source string
	Reason string
}

func (e *MalformedUpstreamResponse) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Source, e.Reason)
}

// ValidationDegradation describes a recoverable validation failure. It is
// logged by the component that recovers from it and never returned.
type ValidationDegradation struct {
	Field  string
	Reason string
}

func (e *ValidationDegradation) Error() string {
	return fmt.Sprintf("%s degraded: %s", e.Field, e.Reason)
}
