package external

import (
	"context"
	"net/http"
	"strings"

	"thermostat/internal/types"
)

// HealthReporter receives per-API call outcomes. health.Monitor implements it.
type HealthReporter interface {
	ReportSuccess(apiID string)
	ReportError(apiID, msg string)
}

type noopReporter struct{}

func (noopReporter) ReportSuccess(string)       {}
func (noopReporter) ReportError(string, string) {}

// HealthchecksClient pings a Healthchecks.io style dead-man's switch.
type HealthchecksClient struct {
	base *BaseClient
	url  string
}

// NewHealthchecksClient creates a client for the check at pingURL.
func NewHealthchecksClient(base *BaseClient, pingURL string) *HealthchecksClient {
	if base == nil {
		base = NewBaseClient(nil, "healthchecks", WithRetryPolicy(RetryPolicy{MaxRetries: 1}))
	}
	return &HealthchecksClient{base: base, url: strings.TrimRight(pingURL, "/")}
}

// Ping posts to the check URL, or to its /fail endpoint when fail is set.
// body is sent as plain text and shows up in the check's event log.
func (c *HealthchecksClient) Ping(ctx context.Context, fail bool, body string) error {
	target := c.url
	if fail {
		target += "/fail"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build ping request", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, types.ErrCodeUpstreamFetch)
	}
	return nil
}
