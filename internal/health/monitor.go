// Package health tracks consecutive failures per external API and reports
// the aggregate to a dead-man's-switch monitor once per control cycle.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"thermostat/internal/types"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// an API is marked unhealthy.
const DefaultFailureThreshold = 3

// Pinger delivers the liveness ping. external.HealthchecksClient implements it.
type Pinger interface {
	Ping(ctx context.Context, fail bool, body string) error
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// APIs are registered up front so they show as healthy before their
	// first call. Unknown ids are registered on first report.
	APIs             []string
	FailureThreshold int
	Pinger           Pinger
	Logger           *slog.Logger
}

// Monitor is safe for concurrent use; the sensor fan-out reports in parallel.
type Monitor struct {
	threshold int
	pinger    Pinger
	logger    *slog.Logger

	mu     sync.Mutex
	status map[string]*types.APIHealth
}

// NewMonitor creates a Monitor with every configured API marked healthy.
func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}

	m := &Monitor{
		threshold: threshold,
		pinger:    cfg.Pinger,
		logger:    logger.With("component", "health"),
		status:    make(map[string]*types.APIHealth, len(cfg.APIs)),
	}
	for _, id := range cfg.APIs {
		m.status[id] = &types.APIHealth{Healthy: true}
	}
	return m
}

func (m *Monitor) entry(apiID string) *types.APIHealth {
	h, ok := m.status[apiID]
	if !ok {
		h = &types.APIHealth{Healthy: true}
		m.status[apiID] = h
	}
	return h
}

// ReportSuccess resets the failure count and marks the API healthy.
func (m *Monitor) ReportSuccess(apiID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.entry(apiID)
	if !h.Healthy {
		m.logger.Info("api recovered", "api", apiID)
	}
	*h = types.APIHealth{Healthy: true}
}

// ReportError records a failure. The API turns unhealthy exactly when its
// consecutive failure count reaches the threshold.
func (m *Monitor) ReportError(apiID, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.entry(apiID)
	h.ConsecutiveFailures++
	h.LastError = msg

	if h.Healthy && h.ConsecutiveFailures >= m.threshold {
		h.Healthy = false
		m.logger.Error("api marked unhealthy",
			"api", apiID,
			"consecutive_failures", h.ConsecutiveFailures,
			"last_error", msg,
		)
	}
}

// Status returns a snapshot of every tracked API.
func (m *Monitor) Status() map[string]types.APIHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]types.APIHealth, len(m.status))
	for id, h := range m.status {
		out[id] = *h
	}
	return out
}

// Unhealthy lists the APIs currently marked unhealthy, ordered by id.
func (m *Monitor) Unhealthy() []types.UnhealthyAPI {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.UnhealthyAPI
	for _, id := range slices.Sorted(maps.Keys(m.status)) {
		if h := m.status[id]; !h.Healthy {
			out = append(out, types.UnhealthyAPI{APIID: id, LastError: h.LastError})
		}
	}
	return out
}

// Ping reports liveness. With every API healthy it sends a plain success
// ping; otherwise a failure ping whose body lists "api: last error" per
// line. Returns false without any call when no pinger is configured.
func (m *Monitor) Ping(ctx context.Context) bool {
	if m.pinger == nil {
		return false
	}

	unhealthy := m.Unhealthy()
	lines := make([]string, 0, len(unhealthy))
	for _, u := range unhealthy {
		lines = append(lines, fmt.Sprintf("%s: %s", u.APIID, u.LastError))
	}

	if err := m.pinger.Ping(ctx, len(unhealthy) > 0, strings.Join(lines, "\n")); err != nil {
		m.logger.ErrorContext(ctx, "liveness ping failed", "error", err)
		return false
	}
	return true
}
