package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"thermostat/internal/control"
	"thermostat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubSensor struct {
	name    string
	reading *types.Reading
	delay   time.Duration
	calls   atomic.Int32
	sawCtx  func(ctx context.Context)
}

func (s *stubSensor) Name() string { return s.name }

func (s *stubSensor) FetchReading(ctx context.Context) *types.Reading {
	s.calls.Add(1)
	if s.sawCtx != nil {
		s.sawCtx(ctx)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil
		}
	}
	return s.reading
}

type stubEngine struct {
	mu       sync.Mutex
	got      [][]*types.Reading
	decision *control.Decision
	err      error
	block    chan struct{}
	entered  chan struct{}
}

func (e *stubEngine) EvaluateAndControl(_ context.Context, readings []*types.Reading) (*control.Decision, error) {
	if e.entered != nil {
		e.entered <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	e.got = append(e.got, readings)
	e.mu.Unlock()
	return e.decision, e.err
}

func (e *stubEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.got)
}

type fakeHealth struct {
	mu        sync.Mutex
	successes []string
	errs      []string
	pings     int
	unhealthy []types.UnhealthyAPI
}

func (h *fakeHealth) ReportSuccess(apiID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes = append(h.successes, apiID)
}

func (h *fakeHealth) ReportError(apiID, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, apiID)
}

func (h *fakeHealth) Unhealthy() []types.UnhealthyAPI { return h.unhealthy }

func (h *fakeHealth) Ping(context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pings++
	return true
}

func (h *fakeHealth) pingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pings
}

type recordingMetrics struct {
	mu      sync.Mutex
	reports []types.CycleReport
}

func (m *recordingMetrics) RecordCycle(_ context.Context, r types.CycleReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func reading(source string, temp float64) *types.Reading {
	return &types.Reading{Source: source, Timestamp: time.Now(), Temperature: types.Float(temp)}
}

func TestRunCycle_FetchesAllSensorsInOrder(t *testing.T) {
	awair := &stubSensor{name: "awair", reading: reading("awair", 71), delay: 20 * time.Millisecond}
	airthings := &stubSensor{name: "airthings", reading: reading("airthings", 69)}
	engine := &stubEngine{decision: &control.Decision{
		Action:      types.ActionMaintain,
		Recorded:    types.ActionMaintain,
		AvgTemp:     70,
		TargetTemp:  70,
		SensorCount: 2,
	}}
	health := &fakeHealth{}
	metrics := &recordingMetrics{}

	loop := NewLoop(LoopConfig{
		Sensors: []Sensor{awair, airthings},
		Engine:  engine,
		Health:  health,
		Metrics: metrics,
		Logger:  discardLogger,
	})

	decision, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, decision)

	require.Len(t, engine.got, 1)
	got := engine.got[0]
	require.Len(t, got, 2)
	assert.Equal(t, "awair", got[0].Source)
	assert.Equal(t, "airthings", got[1].Source)

	assert.Equal(t, []string{types.APIDatabase}, health.successes)
	assert.Equal(t, 1, health.pingCount())

	require.Len(t, metrics.reports, 1)
	r := metrics.reports[0]
	assert.True(t, r.Evaluated)
	assert.False(t, r.Failed)
	assert.Equal(t, types.ActionMaintain, r.Action)
	assert.Equal(t, 2, r.SensorCount)
	assert.NotEmpty(t, r.CycleID)

	assert.False(t, loop.LastCompleted().IsZero())
}

func TestRunCycle_SlowSensorTimesOutWithoutBlockingOthers(t *testing.T) {
	slow := &stubSensor{name: "slow", reading: reading("awair", 71), delay: time.Second}
	fast := &stubSensor{name: "fast", reading: reading("airthings", 69)}
	engine := &stubEngine{decision: &control.Decision{Action: types.ActionMaintain}}

	loop := NewLoop(LoopConfig{
		Sensors:     []Sensor{slow, fast},
		Engine:      engine,
		Health:      &fakeHealth{},
		CallTimeout: 20 * time.Millisecond,
		Logger:      discardLogger,
	})

	start := time.Now()
	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	got := engine.got[0]
	assert.Nil(t, got[0])
	require.NotNil(t, got[1])
	assert.Equal(t, "airthings", got[1].Source)
}

func TestRunCycle_PropagatesCycleIDToSensors(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	capture := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, types.GetRequestID(ctx))
	}
	s1 := &stubSensor{name: "a", sawCtx: capture}
	s2 := &stubSensor{name: "b", sawCtx: capture}
	metrics := &recordingMetrics{}

	loop := NewLoop(LoopConfig{
		Sensors: []Sensor{s1, s2},
		Engine:  &stubEngine{err: types.NewAppError(types.ErrCodeNoValidReadings, "no readings", nil)},
		Health:  &fakeHealth{},
		Metrics: metrics,
		Logger:  discardLogger,
	})

	_, err := loop.RunCycle(context.Background())
	require.Error(t, err)

	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[0], metrics.reports[0].CycleID)
}

func TestRunCycle_NoValidReadingsStillPings(t *testing.T) {
	health := &fakeHealth{}
	metrics := &recordingMetrics{}
	loop := NewLoop(LoopConfig{
		Sensors: []Sensor{&stubSensor{name: "a"}},
		Engine:  &stubEngine{err: types.NewAppError(types.ErrCodeNoValidReadings, "no readings", nil)},
		Health:  health,
		Metrics: metrics,
		Logger:  discardLogger,
	})

	decision, err := loop.RunCycle(context.Background())
	assert.Nil(t, decision)
	assert.True(t, types.HasCode(err, types.ErrCodeNoValidReadings))

	assert.Empty(t, health.successes)
	assert.Empty(t, health.errs)
	assert.Equal(t, 1, health.pingCount())

	require.Len(t, metrics.reports, 1)
	assert.False(t, metrics.reports[0].Evaluated)
	assert.True(t, metrics.reports[0].Failed)
}

func TestRunCycle_StoreFailureReportsDatabase(t *testing.T) {
	health := &fakeHealth{unhealthy: []types.UnhealthyAPI{{APIID: types.APIDatabase, LastError: "down"}}}
	metrics := &recordingMetrics{}
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "save failed", errors.New("conn refused"))
	loop := NewLoop(LoopConfig{
		Sensors: []Sensor{&stubSensor{name: "a", reading: reading("awair", 72)}},
		Engine: &stubEngine{
			decision: &control.Decision{Action: types.ActionCool, Recorded: types.ActionCool},
			err:      dbErr,
		},
		Health:  health,
		Metrics: metrics,
		Logger:  discardLogger,
	})

	decision, err := loop.RunCycle(context.Background())
	require.NotNil(t, decision)
	assert.ErrorIs(t, err, dbErr)

	assert.Equal(t, []string{types.APIDatabase}, health.errs)
	assert.Empty(t, health.successes)
	assert.Equal(t, 1, metrics.reports[0].UnhealthyAPIs)
	assert.True(t, metrics.reports[0].Evaluated)
}

func TestRunCycle_OverlappingCallIsRejected(t *testing.T) {
	engine := &stubEngine{
		decision: &control.Decision{Action: types.ActionMaintain},
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	loop := NewLoop(LoopConfig{
		Engine: engine,
		Health: &fakeHealth{},
		Logger: discardLogger,
	})

	done := make(chan error, 1)
	go func() {
		_, err := loop.RunCycle(context.Background())
		done <- err
	}()
	<-engine.entered

	_, err := loop.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(engine.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, engine.calls())
}

func TestRun_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	health := &fakeHealth{}
	engine := &stubEngine{decision: &control.Decision{Action: types.ActionMaintain}}
	loop := NewLoop(LoopConfig{
		Engine:   engine,
		Health:   health,
		Interval: 10 * time.Millisecond,
		Logger:   discardLogger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	assert.Eventually(t, func() bool { return engine.calls() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, health.pingCount(), 3)
}

func TestNewLoop_Defaults(t *testing.T) {
	loop := NewLoop(LoopConfig{Engine: &stubEngine{}, Health: &fakeHealth{}})
	assert.Equal(t, DefaultPollInterval, loop.Interval())
	assert.Equal(t, DefaultCallTimeout, loop.callTimeout)
	assert.True(t, loop.LastCompleted().IsZero())
}
