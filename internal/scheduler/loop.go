// Package scheduler runs the control loop: every poll interval it fetches
// all sensors concurrently, hands the readings to the decision engine,
// records cycle metrics and pings the liveness monitor.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"thermostat/internal/control"
	"thermostat/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrCycleInProgress is returned by RunCycle when another cycle has not
// finished yet. The overlapping tick is dropped, not queued.
var ErrCycleInProgress = errors.New("control cycle already in progress")

// Defaults for LoopConfig.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultCallTimeout  = 10 * time.Second
)

// Sensor is one ambient sensor adapter. FetchReading never errors; it
// returns nil when the sensor is unavailable.
type Sensor interface {
	Name() string
	FetchReading(ctx context.Context) *types.Reading
}

// Evaluator is the decision engine.
type Evaluator interface {
	EvaluateAndControl(ctx context.Context, readings []*types.Reading) (*control.Decision, error)
}

// HealthMonitor tracks dependency health and delivers the liveness ping.
type HealthMonitor interface {
	ReportSuccess(apiID string)
	ReportError(apiID, msg string)
	Unhealthy() []types.UnhealthyAPI
	Ping(ctx context.Context) bool
}

// MetricsRecorder publishes cycle metrics.
type MetricsRecorder interface {
	RecordCycle(ctx context.Context, report types.CycleReport)
}

// LoopConfig holds the configuration for creating a Loop.
type LoopConfig struct {
	Sensors     []Sensor
	Engine      Evaluator
	Health      HealthMonitor
	Metrics     MetricsRecorder
	Interval    time.Duration
	CallTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Loop drives the control cycle. At most one cycle runs at a time.
type Loop struct {
	sensors     []Sensor
	engine      Evaluator
	health      HealthMonitor
	metrics     MetricsRecorder
	interval    time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	running       sync.Mutex
	lastCompleted atomic.Int64 // unix nanos
}

// NewLoop creates a Loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	return &Loop{
		sensors:     cfg.Sensors,
		engine:      cfg.Engine,
		health:      cfg.Health,
		metrics:     cfg.Metrics,
		interval:    interval,
		callTimeout: callTimeout,
		logger:      logger.With("component", "loop"),
		now:         now,
	}
}

// Interval returns the poll interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// LastCompleted returns when the last cycle finished, or the zero time.
func (l *Loop) LastCompleted() time.Time {
	ns := l.lastCompleted.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. Ticks that arrive while a cycle is still running are skipped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "control loop started",
		"interval", l.interval,
		"sensors", len(l.sensors),
	)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.InfoContext(ctx, "control loop stopped")
			return nil
		case <-ticker.C:
			l.runLogged(ctx)
		}
	}
}

func (l *Loop) runLogged(ctx context.Context) {
	if _, err := l.RunCycle(ctx); errors.Is(err, ErrCycleInProgress) {
		l.logger.WarnContext(ctx, "previous cycle still running, tick skipped")
	}
}

// RunCycle performs one full cycle: concurrent sensor fetch, evaluation,
// metrics and liveness ping. The returned error is informational; the loop
// keeps running regardless.
func (l *Loop) RunCycle(ctx context.Context) (*control.Decision, error) {
	if !l.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer l.running.Unlock()

	start := l.now()
	cycleID := uuid.NewString()
	logger := l.logger.With("cycle_id", cycleID)
	ctx = types.WithRequestID(ctx, cycleID)
	ctx = types.WithLogger(ctx, logger)

	readings := l.fetchAll(ctx)

	decision, err := l.engine.EvaluateAndControl(ctx, readings)
	switch {
	case err == nil:
		l.health.ReportSuccess(types.APIDatabase)
	case types.HasCode(err, types.ErrCodeInternalDB):
		logger.ErrorContext(ctx, "cycle persisted partially", "error", err)
		l.health.ReportError(types.APIDatabase, err.Error())
	case types.HasCode(err, types.ErrCodeNoValidReadings):
		logger.WarnContext(ctx, "cycle skipped", "reason", err.Error())
	default:
		logger.ErrorContext(ctx, "cycle failed", "error", err)
	}

	unhealthy := l.health.Unhealthy()
	report := types.CycleReport{
		CycleID:       cycleID,
		Duration:      l.now().Sub(start),
		Evaluated:     decision != nil,
		UnhealthyAPIs: len(unhealthy),
		Failed:        err != nil,
	}
	if decision != nil {
		report.Action = decision.Action
		report.Recorded = decision.Recorded
		report.AvgTemp = decision.AvgTemp
		report.TargetTemp = decision.TargetTemp
		report.SensorCount = decision.SensorCount
	}
	if l.metrics != nil {
		l.metrics.RecordCycle(ctx, report)
	}

	l.health.Ping(ctx)
	l.lastCompleted.Store(l.now().UnixNano())

	logger.InfoContext(ctx, "cycle complete",
		"duration", report.Duration,
		"unhealthy_apis", len(unhealthy),
	)
	return decision, err
}

// fetchAll queries every sensor concurrently, each under its own timeout.
// The result keeps sensor order; unavailable sensors leave a nil slot.
func (l *Loop) fetchAll(ctx context.Context) []*types.Reading {
	readings := make([]*types.Reading, len(l.sensors))

	var g errgroup.Group
	for i, s := range l.sensors {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
			defer cancel()
			readings[i] = s.FetchReading(callCtx)
			return nil
		})
	}
	_ = g.Wait()

	return readings
}
