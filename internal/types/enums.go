package types

// ActionKind is the outcome recorded by the decision engine for one cycle.
type ActionKind string

const (
	// Computed decisions.
	ActionHeat     ActionKind = "HEAT"
	ActionCool     ActionKind = "COOL"
	ActionMaintain ActionKind = "MAINTAIN"

	// Decisions that switched the device mode.
	ActionSetHeat ActionKind = "SET_HEAT"
	ActionSetCool ActionKind = "SET_COOL"
	ActionSetOff  ActionKind = "SET_OFF"
)

// HVACMode is the thermostat operating mode as reported by the device API.
type HVACMode string

const (
	ModeHeat     HVACMode = "HEAT"
	ModeCool     HVACMode = "COOL"
	ModeHeatCool HVACMode = "HEATCOOL"
	ModeOff      HVACMode = "OFF"
)

// Reading sources.
const (
	SourceAwair     = "awair"
	SourceAirthings = "airthings"
	SourceDevice    = "device"
)

// External API identifiers used for credential caching and health tracking.
const (
	APIAwair     = "awair"
	APIAirthings = "airthings"
	APINest      = "nest"
	APIDatabase  = "database"
)

// Control state keys.
const (
	StateTargetTemp  = "target_temp"
	StateThreshold   = "threshold"
	StateAvgTemp     = "avg_temp"
	StateSensorCount = "sensor_count"
	StateLastCheck   = "last_check"
	StateLastAction  = "last_action"
	StateLastReason  = "last_reason"
	StateLastError   = "last_error"
	StateFanAlwaysOn = "fan_always_on"
	StateDeviceState = "device_state"
)
