package types

import "time"

// Telemetry metric names for CloudWatch.
const (
	MetricAverageTemperature = "AverageTemperature"
	MetricTargetTemperature  = "TargetTemperature"
	MetricSensorCount        = "SensorCount"
	MetricControlAction      = "ControlAction"
	MetricCycleDuration      = "CycleDuration"
	MetricUnhealthyAPIs      = "UnhealthyAPIs"
	MetricCycleFailure       = "CycleFailure"

	DimAction = "Action"

	MetricNamespace = "Thermostat"
)

// CycleReport summarizes one control cycle for metrics.
type CycleReport struct {
	CycleID       string
	Duration      time.Duration
	Evaluated     bool // false when no reading carried a temperature
	Action        ActionKind
	Recorded      ActionKind
	AvgTemp       float64
	TargetTemp    float64
	SensorCount   int
	UnhealthyAPIs int
	Failed        bool
}
