package types

import (
	"encoding/json"
	"time"
)

// AirQuality holds the optional extras reported by air-quality sensors.
type AirQuality struct {
	VOC   *float64 `json:"voc,omitempty"`   // ppb
	CO2   *float64 `json:"co2,omitempty"`   // ppm
	PM25  *float64 `json:"pm25,omitempty"`  // µg/m³
	Radon *float64 `json:"radon,omitempty"` // Bq/m³, short-term average
}

// DeviceExtras holds the optional extras carried by readings whose source is
// the climate-control device.
type DeviceExtras struct {
	HVACStatus   string   `json:"hvac_status,omitempty"`
	FanRunning   *bool    `json:"fan_running,omitempty"`
	Mode         HVACMode `json:"mode,omitempty"`
	SetpointHeat *float64 `json:"setpoint_heat,omitempty"`
	SetpointCool *float64 `json:"setpoint_cool,omitempty"`
}

// Reading is one sensor observation. Temperatures are always °F.
// A Reading is never modified after capture.
type Reading struct {
	ID          int64         `json:"id,omitempty"`
	Source      string        `json:"source"`
	Timestamp   time.Time     `json:"timestamp"`
	Temperature *float64      `json:"temperature"`
	Humidity    *float64      `json:"humidity"`
	AirQuality  *AirQuality   `json:"air_quality,omitempty"`
	Device      *DeviceExtras `json:"device,omitempty"`
}

// HasTemperature reports whether the reading can contribute to an average.
func (r *Reading) HasTemperature() bool {
	return r != nil && r.Temperature != nil
}

// Action is one decision-engine output event.
type Action struct {
	ID         int64      `json:"id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Kind       ActionKind `json:"action"`
	Reason     string     `json:"reason"`
	AvgTemp    float64    `json:"avg_temp"`
	TargetTemp float64    `json:"target_temp"`
}

// StateEntry is one row of the control state table. Value holds the
// JSON-serialized scalar or object.
type StateEntry struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ControlState maps state keys to their current value.
type ControlState map[string]StateEntry

// CredentialToken is a cached bearer token for one external API.
type CredentialToken struct {
	AccessToken SecretString
	ExpiresAt   time.Time
}

// Valid reports whether the token may still be used at now.
func (t *CredentialToken) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// APIHealth is the tracked health of one external API.
type APIHealth struct {
	Healthy             bool   `json:"healthy"`
	LastError           string `json:"last_error,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// UnhealthyAPI names an API currently marked unhealthy and its last error.
type UnhealthyAPI struct {
	APIID     string `json:"api"`
	LastError string `json:"error"`
}

// DeviceState is the thermostat state as reported by the device API,
// converted to °F.
type DeviceState struct {
	Mode            HVACMode `json:"mode"`
	HVACStatus      string   `json:"hvac_status"`
	Temperature     *float64 `json:"temperature"`
	Humidity        *float64 `json:"humidity"`
	SetpointHeat    *float64 `json:"setpoint_heat"`
	SetpointCool    *float64 `json:"setpoint_cool"`
	FanRunning      bool     `json:"fan_running"`
	FanTimerTimeout string   `json:"fan_timer_timeout,omitempty"`
}

// Reading converts the device state into a device-sourced Reading captured at ts.
func (s *DeviceState) Reading(ts time.Time) *Reading {
	fan := s.FanRunning
	return &Reading{
		Source:      SourceDevice,
		Timestamp:   ts,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Device: &DeviceExtras{
			HVACStatus:   s.HVACStatus,
			FanRunning:   &fan,
			Mode:         s.Mode,
			SetpointHeat: s.SetpointHeat,
			SetpointCool: s.SetpointCool,
		},
	}
}

// DeviceInfo describes a device discovered on the device API.
type DeviceInfo struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Name         string       `json:"name,omitempty"`
	IsThermostat bool         `json:"is_thermostat"`
	State        *DeviceState `json:"state,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
