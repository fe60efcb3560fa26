package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermostat/internal/config"
)

// mockHealthProbe implements HealthProbe for testing.
type mockHealthProbe struct {
	name     string
	checkErr error
	// delay simulates slow subsystems; Check blocks for this duration.
	delay  time.Duration
	called atomic.Bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServerForHealth(t *testing.T, probes ...HealthProbe) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, testLogger())
	require.NoError(t, err)
	srv.HealthProbes = probes
	return srv
}

func doHealth(t *testing.T, srv *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	rec, body := doHealth(t, newTestServerForHealth(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body.Status)
	assert.Empty(t, body.Components)
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	db := &mockHealthProbe{name: "database"}
	loop := &mockHealthProbe{name: "control_loop"}

	rec, body := doHealth(t, newTestServerForHealth(t, db, loop))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Components["database"].Status)
	assert.Equal(t, "healthy", body.Components["control_loop"].Status)
	assert.True(t, db.called.Load())
	assert.True(t, loop.called.Load())
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	db := &mockHealthProbe{name: "database", checkErr: errors.New("connection refused")}
	loop := &mockHealthProbe{name: "control_loop"}

	rec, body := doHealth(t, newTestServerForHealth(t, db, loop))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Components["database"].Message)
	assert.Equal(t, "healthy", body.Components["control_loop"].Status)
}

func TestHandleHealth_SlowProbeTimesOut(t *testing.T) {
	slow := &mockHealthProbe{name: "database", delay: 5 * time.Second}

	start := time.Now()
	rec, body := doHealth(t, newTestServerForHealth(t, slow))

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body.Components["database"].Status)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestDatabaseProbe(t *testing.T) {
	assert.NoError(t, DatabaseProbe{DB: fakePinger{}}.Check(context.Background()))
	assert.Error(t, DatabaseProbe{DB: fakePinger{err: errors.New("down")}}.Check(context.Background()))
}

type fakeCycleClock struct {
	last     time.Time
	interval time.Duration
}

func (f fakeCycleClock) LastCompleted() time.Time { return f.last }
func (f fakeCycleClock) Interval() time.Duration  { return f.interval }

func TestLoopProbe(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tests := []struct {
		name    string
		last    time.Time
		wantErr bool
	}{
		{"never ran", time.Time{}, true},
		{"fresh", now.Add(-30 * time.Second), false},
		{"within three intervals", now.Add(-170 * time.Second), false},
		{"stale", now.Add(-4 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := LoopProbe{Loop: fakeCycleClock{last: tt.last, interval: time.Minute}, Now: clock}
			err := p.Check(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
