// Package control implements the decision engine: it averages sensor
// readings, classifies the result against the target with hysteresis, and
// drives the thermostat toward it by mode switches and forced setpoints.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thermostat/internal/types"
)

// Store is the persistence the engine needs. db.Store implements it.
type Store interface {
	SaveReading(ctx context.Context, r *types.Reading) error
	SaveAction(ctx context.Context, a *types.Action) error
	SetState(ctx context.Context, key string, value any) error
	GetStateValue(ctx context.Context, key string) (json.RawMessage, error)
}

// DeviceController drives the climate-control device. Implementations log
// and swallow their own failures: CurrentState returns nil and commands
// return false.
type DeviceController interface {
	IsConfigured() bool
	CurrentState(ctx context.Context) *types.DeviceState
	SetMode(ctx context.Context, mode types.HVACMode) bool
	SetHeatSetpoint(ctx context.Context, tempF float64) bool
	SetCoolSetpoint(ctx context.Context, tempF float64) bool
	SetFanTimer(ctx context.Context, d time.Duration) bool
}

// Decision is the outcome of one evaluated cycle.
type Decision struct {
	// Action is the computed HEAT, COOL or MAINTAIN.
	Action types.ActionKind `json:"action"`

	// Recorded is the Action row persisted for the cycle; a SET_* kind when
	// a mode switch was applied.
	Recorded types.ActionKind `json:"recorded"`

	Reason      string             `json:"reason"`
	AvgTemp     float64            `json:"avg_temp"`
	TargetTemp  float64            `json:"target_temp"`
	Threshold   float64            `json:"threshold"`
	SensorCount int                `json:"sensor_count"`
	Readings    []*types.Reading   `json:"readings"`
	Device      *types.DeviceState `json:"device,omitempty"`
	FanRenewed  bool               `json:"fan_renewed"`
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Store  Store
	Device DeviceController
	Params Params
	Logger *slog.Logger
	Now    func() time.Time
}

// Engine evaluates one cycle at a time. It holds no state between cycles
// beyond what it writes to the Store.
type Engine struct {
	store  Store
	device DeviceController
	params Params
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. Zero-valued params fall back to DefaultParams.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	params := cfg.Params
	defaults := DefaultParams()
	if params.TargetTemp == 0 {
		params.TargetTemp = defaults.TargetTemp
	}
	if params.Threshold <= 0 {
		params.Threshold = defaults.Threshold
	}
	if params.FanTimerDuration <= 0 {
		params.FanTimerDuration = defaults.FanTimerDuration
	}

	return &Engine{
		store:  cfg.Store,
		device: cfg.Device,
		params: params,
		logger: logger.With("component", "engine"),
		now:    now,
	}
}

// EvaluateAndControl runs one decision cycle over readings.
//
// With no usable temperature it records last_error and returns a nil
// Decision with an ErrCodeNoValidReadings error. Store failures do not stop
// actuation; they are joined and returned alongside a non-nil Decision.
func (e *Engine) EvaluateAndControl(ctx context.Context, readings []*types.Reading) (*Decision, error) {
	logger := types.LoggerFromContext(ctx, e.logger)

	valid := make([]*types.Reading, 0, len(readings))
	for _, r := range readings {
		if r.HasTemperature() {
			valid = append(valid, r)
		}
	}

	if len(valid) == 0 {
		logger.WarnContext(ctx, "no valid sensor readings, skipping cycle")
		err := types.NewAppError(types.ErrCodeNoValidReadings, "no valid sensor readings", nil)
		if setErr := e.store.SetState(ctx, types.StateLastError, "No valid sensor readings"); setErr != nil {
			return nil, errors.Join(err, setErr)
		}
		return nil, err
	}

	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	avg, count := Mean(valid)
	for _, r := range valid {
		record(e.store.SaveReading(ctx, r))
	}

	target, err := e.TargetTemp(ctx)
	record(err)
	threshold := e.params.Threshold

	action, reason := Decide(avg, target, threshold)

	now := e.now().UTC()
	record(e.store.SetState(ctx, types.StateAvgTemp, avg))
	record(e.store.SetState(ctx, types.StateTargetTemp, target))
	record(e.store.SetState(ctx, types.StateThreshold, threshold))
	record(e.store.SetState(ctx, types.StateSensorCount, count))
	record(e.store.SetState(ctx, types.StateLastCheck, now.Format(time.RFC3339)))

	logger.InfoContext(ctx, "cycle evaluated",
		"avg_temp", avg,
		"target_temp", target,
		"threshold", threshold,
		"sensors", count,
		"action", action,
		"reason", reason,
	)

	decision := &Decision{
		Action:      action,
		Recorded:    action,
		Reason:      reason,
		AvgTemp:     avg,
		TargetTemp:  target,
		Threshold:   threshold,
		SensorCount: count,
		Readings:    valid,
	}

	state := e.device.CurrentState(ctx)
	decision.Device = state
	record(e.store.SetState(ctx, types.StateDeviceState, state))

	if state != nil {
		record(e.store.SaveReading(ctx, state.Reading(now)))

		fanOn, err := e.FanAlwaysOn(ctx)
		record(err)
		if fanOn && !state.FanRunning {
			logger.InfoContext(ctx, "fan not running, renewing timer", "duration", e.params.FanTimerDuration)
			decision.FanRenewed = e.device.SetFanTimer(ctx, e.params.FanTimerDuration)
		}

		if e.device.IsConfigured() {
			decision.Recorded = e.actuate(ctx, logger, action, state)
		}
	}

	record(e.store.SaveAction(ctx, &types.Action{
		Timestamp:  now,
		Kind:       decision.Recorded,
		Reason:     reason,
		AvgTemp:    avg,
		TargetTemp: target,
	}))
	record(e.store.SetState(ctx, types.StateLastAction, action))
	record(e.store.SetState(ctx, types.StateLastReason, reason))

	return decision, errors.Join(errs...)
}

// actuate applies the computed action and returns the Action kind to record.
// A SET_* kind is returned only when the mode switch succeeded.
func (e *Engine) actuate(ctx context.Context, logger *slog.Logger, action types.ActionKind, state *types.DeviceState) types.ActionKind {
	recorded := action

	switch action {
	case types.ActionHeat:
		if state.Mode != types.ModeHeat {
			logger.InfoContext(ctx, "switching device to HEAT", "current_mode", state.Mode)
			if e.device.SetMode(ctx, types.ModeHeat) {
				recorded = types.ActionSetHeat
			}
		}
		if state.Temperature == nil {
			logger.WarnContext(ctx, "device reports no temperature, heat setpoint not forced")
			break
		}
		if needsHeatForce(state.SetpointHeat, *state.Temperature) {
			sp := forcedHeatSetpoint(*state.Temperature)
			logger.InfoContext(ctx, "forcing heat setpoint", "setpoint", sp, "device_temp", *state.Temperature)
			e.device.SetHeatSetpoint(ctx, sp)
		}

	case types.ActionCool:
		if state.Mode != types.ModeCool {
			logger.InfoContext(ctx, "switching device to COOL", "current_mode", state.Mode)
			if e.device.SetMode(ctx, types.ModeCool) {
				recorded = types.ActionSetCool
			}
		}
		if state.Temperature == nil {
			logger.WarnContext(ctx, "device reports no temperature, cool setpoint not forced")
			break
		}
		if needsCoolForce(state.SetpointCool, *state.Temperature) {
			sp := forcedCoolSetpoint(*state.Temperature)
			logger.InfoContext(ctx, "forcing cool setpoint", "setpoint", sp, "device_temp", *state.Temperature)
			e.device.SetCoolSetpoint(ctx, sp)
		}

	case types.ActionMaintain:
		if state.Mode != types.ModeOff {
			logger.InfoContext(ctx, "temperature satisfied, turning device OFF", "current_mode", state.Mode)
			if e.device.SetMode(ctx, types.ModeOff) {
				recorded = types.ActionSetOff
			}
		}
	}

	return recorded
}

// TargetTemp returns the runtime target, falling back to the configured
// default when none is stored. A store failure also yields the default,
// together with the error.
func (e *Engine) TargetTemp(ctx context.Context) (float64, error) {
	var v float64
	ok, err := e.stateValue(ctx, types.StateTargetTemp, &v)
	if !ok {
		return e.params.TargetTemp, err
	}
	return v, nil
}

// SetTargetTemp stores a new runtime target. It takes effect next cycle.
func (e *Engine) SetTargetTemp(ctx context.Context, tempF float64) error {
	if tempF < MinTargetTemp || tempF > MaxTargetTemp {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationTargetRange,
			fmt.Sprintf("target temperature must be between %.0f and %.0f°F", MinTargetTemp, MaxTargetTemp),
			nil,
			map[string]any{"target_temp": tempF},
		)
	}
	return e.store.SetState(ctx, types.StateTargetTemp, tempF)
}

// FanAlwaysOn reports whether the fan timer is renewed every cycle.
func (e *Engine) FanAlwaysOn(ctx context.Context) (bool, error) {
	var v bool
	ok, err := e.stateValue(ctx, types.StateFanAlwaysOn, &v)
	if !ok {
		return e.params.FanAlwaysOn, err
	}
	return v, nil
}

// SetFanAlwaysOn stores the fan mode. Enabling it also starts the fan timer
// right away; cycles renew it from then on.
func (e *Engine) SetFanAlwaysOn(ctx context.Context, enabled bool) error {
	if err := e.store.SetState(ctx, types.StateFanAlwaysOn, enabled); err != nil {
		return err
	}
	if !enabled || !e.device.IsConfigured() {
		return nil
	}
	if !e.device.SetFanTimer(ctx, e.params.FanTimerDuration) {
		types.LoggerFromContext(ctx, e.logger).WarnContext(ctx, "fan timer not started", "duration", e.params.FanTimerDuration)
	}
	return nil
}

// stateValue decodes key into out. It reports false when the key is absent,
// null, undecodable, or the store failed.
func (e *Engine) stateValue(ctx context.Context, key string, out any) (bool, error) {
	raw, err := e.store.GetStateValue(ctx, key)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		e.logger.WarnContext(ctx, "ignoring malformed state value", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}
