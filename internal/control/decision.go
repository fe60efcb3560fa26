package control

import (
	"fmt"
	"math"
	"strconv"

	"thermostat/internal/types"
)

// Decide classifies the average against the target with a symmetric
// hysteresis band. Comparisons are strict: a diff of exactly ±threshold
// is MAINTAIN.
func Decide(avg, target, threshold float64) (types.ActionKind, string) {
	diff := avg - target
	switch {
	case diff < -threshold:
		return types.ActionHeat, fmt.Sprintf("Avg temp %.1f°F is %.1f° below target", avg, math.Abs(diff))
	case diff > threshold:
		return types.ActionCool, fmt.Sprintf("Avg temp %.1f°F is %.1f° above target", avg, diff)
	default:
		return types.ActionMaintain, fmt.Sprintf("Avg temp %.1f°F is within %s° of target",
			avg, strconv.FormatFloat(threshold, 'f', -1, 64))
	}
}

// Mean returns the arithmetic mean of the readings that carry a
// temperature, and how many did.
func Mean(readings []*types.Reading) (float64, int) {
	var sum float64
	var n int
	for _, r := range readings {
		if r.HasTemperature() {
			sum += *r.Temperature
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// forcedHeatSetpoint keeps the device calling for heat regardless of its own
// (possibly biased) sensor.
func forcedHeatSetpoint(deviceTemp float64) float64 {
	return math.Max(deviceTemp+15, 90)
}

func forcedCoolSetpoint(deviceTemp float64) float64 {
	return math.Min(deviceTemp-15, 50)
}

// setpointMargin is how close a setpoint may sit to the device temperature
// before it is re-forced.
const setpointMargin = 2.0

func needsHeatForce(setpoint *float64, deviceTemp float64) bool {
	return setpoint == nil || *setpoint < deviceTemp+setpointMargin
}

func needsCoolForce(setpoint *float64, deviceTemp float64) bool {
	return setpoint == nil || *setpoint > deviceTemp-setpointMargin
}
