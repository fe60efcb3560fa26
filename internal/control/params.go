package control

import "time"

// Target temperature bounds accepted from operators, °F.
const (
	MinTargetTemp = 50.0
	MaxTargetTemp = 90.0
)

// DefaultFanTimerDuration is the fan timer renewed each cycle in
// fan-always-on mode; the device API caps timers at 12 hours.
const DefaultFanTimerDuration = 12 * time.Hour

// Params are the static defaults. Target temperature and fan mode may be
// overridden at runtime through the state table.
type Params struct {
	TargetTemp       float64
	Threshold        float64
	FanAlwaysOn      bool
	FanTimerDuration time.Duration
}

// DefaultParams returns the stock 70°F ±1.5° configuration.
func DefaultParams() Params {
	return Params{
		TargetTemp:       70,
		Threshold:        1.5,
		FanTimerDuration: DefaultFanTimerDuration,
	}
}
