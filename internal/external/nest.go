package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"thermostat/internal/types"
)

// SDM trait and command names.
const (
	traitMode        = "sdm.devices.traits.ThermostatMode"
	traitHvac        = "sdm.devices.traits.ThermostatHvac"
	traitTemperature = "sdm.devices.traits.Temperature"
	traitHumidity    = "sdm.devices.traits.Humidity"
	traitSetpoint    = "sdm.devices.traits.ThermostatTemperatureSetpoint"
	traitFan         = "sdm.devices.traits.Fan"
	traitInfo        = "sdm.devices.traits.Info"

	cmdSetMode     = "sdm.devices.commands.ThermostatMode.SetMode"
	cmdSetHeat     = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
	cmdSetCool     = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetCool"
	cmdSetFanTimer = "sdm.devices.commands.Fan.SetTimer"
)

// MaxFanTimer is the longest fan timer the device API accepts.
const MaxFanTimer = 12 * time.Hour

// NestConfig holds the device API configuration. The refresh-token grant
// lives in the CredentialCache under types.APINest.
type NestConfig struct {
	ProjectID string
	DeviceID  string
	BaseURL   string
	Reporter  HealthReporter
	Logger    *slog.Logger
}

// NestClient drives a Google Nest thermostat through the Smart Device
// Management API. Every method degrades to nil/false on failure after
// logging; the control loop never sees a device error.
type NestClient struct {
	base      *BaseClient
	creds     *CredentialCache
	projectID string
	deviceID  string
	baseURL   string
	reporter  HealthReporter
	logger    *slog.Logger
}

// NewNestClient creates a device controller.
func NewNestClient(base *BaseClient, creds *CredentialCache, cfg NestConfig) *NestClient {
	if base == nil {
		base = NewBaseClient(nil, types.APINest)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = noopReporter{}
	}

	return &NestClient{
		base:      base,
		creds:     creds,
		projectID: cfg.ProjectID,
		deviceID:  cfg.DeviceID,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		reporter:  reporter,
		logger:    logger.With("component", "nest"),
	}
}

// IsConfigured reports whether project, device and credentials are present.
func (c *NestClient) IsConfigured() bool {
	return c.creds != nil && c.projectID != "" && c.deviceID != ""
}

type sdmDevice struct {
	Name   string                    `json:"name"`
	Type   string                    `json:"type"`
	Traits map[string]map[string]any `json:"traits"`
}

type sdmCommand struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

func (c *NestClient) devicePath() string {
	return fmt.Sprintf("%s/enterprises/%s/devices/%s",
		c.baseURL, url.PathEscape(c.projectID), url.PathEscape(c.deviceID))
}

// CurrentState returns the thermostat state in °F, or nil when the device is
// unconfigured or the call fails.
func (c *NestClient) CurrentState(ctx context.Context) *types.DeviceState {
	if !c.IsConfigured() {
		c.logger.DebugContext(ctx, "nest not configured, skipping state read")
		return nil
	}

	device, err := c.getDevice(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "nest state read failed", "error", err)
		c.reporter.ReportError(types.APINest, err.Error())
		return nil
	}

	state := parseDeviceState(device.Traits)
	c.logger.InfoContext(ctx, "nest state",
		"mode", state.Mode,
		"hvac", state.HVACStatus,
		"fan_running", state.FanRunning,
		"temperature", state.Temperature,
	)
	c.reporter.ReportSuccess(types.APINest)
	return state
}

func (c *NestClient) getDevice(ctx context.Context) (*sdmDevice, error) {
	var device sdmDevice
	err := c.withToken(ctx, func(token string) error {
		return c.base.getJSON(ctx, c.devicePath(), token, types.ErrCodeUpstreamFetch, &device)
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// parseDeviceState extracts the traits the controller needs. Missing traits
// leave their fields nil or empty.
func parseDeviceState(traits map[string]map[string]any) *types.DeviceState {
	state := &types.DeviceState{
		Mode:            types.HVACMode(stringTrait(traits, traitMode, "mode")),
		HVACStatus:      stringTrait(traits, traitHvac, "status"),
		Temperature:     types.FahrenheitPtr(numberTrait(traits, traitTemperature, "ambientTemperatureCelsius")),
		Humidity:        numberTrait(traits, traitHumidity, "ambientHumidityPercent"),
		SetpointHeat:    types.FahrenheitPtr(numberTrait(traits, traitSetpoint, "heatCelsius")),
		SetpointCool:    types.FahrenheitPtr(numberTrait(traits, traitSetpoint, "coolCelsius")),
		FanTimerTimeout: stringTrait(traits, traitFan, "timerTimeout"),
	}
	state.FanRunning = stringTrait(traits, traitFan, "timerMode") == "ON"
	return state
}

func stringTrait(traits map[string]map[string]any, trait, field string) string {
	s, _ := traits[trait][field].(string)
	return s
}

func numberTrait(traits map[string]map[string]any, trait, field string) *float64 {
	if v, ok := traits[trait][field].(float64); ok {
		return &v
	}
	return nil
}

// SetMode switches the HVAC mode.
func (c *NestClient) SetMode(ctx context.Context, mode types.HVACMode) bool {
	return c.execute(ctx, cmdSetMode, map[string]any{"mode": string(mode)},
		"mode", mode)
}

// SetHeatSetpoint sets the heat setpoint, given in °F.
func (c *NestClient) SetHeatSetpoint(ctx context.Context, tempF float64) bool {
	return c.execute(ctx, cmdSetHeat, map[string]any{"heatCelsius": types.CelsiusFromFahrenheit(tempF)},
		"heat_setpoint_f", tempF)
}

// SetCoolSetpoint sets the cool setpoint, given in °F.
func (c *NestClient) SetCoolSetpoint(ctx context.Context, tempF float64) bool {
	return c.execute(ctx, cmdSetCool, map[string]any{"coolCelsius": types.CelsiusFromFahrenheit(tempF)},
		"cool_setpoint_f", tempF)
}

// SetFanTimer runs the fan for d, capped at MaxFanTimer.
func (c *NestClient) SetFanTimer(ctx context.Context, d time.Duration) bool {
	d = min(d, MaxFanTimer)
	seconds := int64(d / time.Second)
	return c.execute(ctx, cmdSetFanTimer, map[string]any{
		"timerMode": "ON",
		"duration":  fmt.Sprintf("%ds", seconds),
	}, "fan_timer_seconds", seconds)
}

func (c *NestClient) execute(ctx context.Context, command string, params map[string]any, logArgs ...any) bool {
	if !c.IsConfigured() {
		c.logger.WarnContext(ctx, "nest not configured, command skipped", "command", command)
		return false
	}

	err := c.withToken(ctx, func(token string) error {
		return c.base.postJSON(ctx, c.devicePath()+":executeCommand", token,
			types.ErrCodeUpstreamCommand, sdmCommand{Command: command, Params: params}, nil)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "nest command failed", append([]any{"command", command, "error", err}, logArgs...)...)
		return false
	}

	c.logger.InfoContext(ctx, "nest command applied", append([]any{"command", command}, logArgs...)...)
	return true
}

// withToken runs fn with a bearer token, invalidating the cached token when
// the API rejects it so the next call re-exchanges.
func (c *NestClient) withToken(ctx context.Context, fn func(token string) error) error {
	token, err := c.creds.Token(ctx, types.APINest)
	if err != nil {
		return err
	}
	err = fn(token)
	if isUnauthorized(err) {
		c.creds.Invalidate(types.APINest)
	}
	return err
}

// ListDevices returns every device visible to the project, marking
// thermostats and reading their current state.
func (c *NestClient) ListDevices(ctx context.Context) ([]types.DeviceInfo, error) {
	if c.creds == nil || c.projectID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthNotConfigured, "nest project and credentials are required", nil)
	}

	var payload struct {
		Devices []sdmDevice `json:"devices"`
	}
	endpoint := fmt.Sprintf("%s/enterprises/%s/devices", c.baseURL, url.PathEscape(c.projectID))
	err := c.withToken(ctx, func(token string) error {
		return c.base.getJSON(ctx, endpoint, token, types.ErrCodeUpstreamFetch, &payload)
	})
	if err != nil {
		return nil, err
	}

	devices := make([]types.DeviceInfo, 0, len(payload.Devices))
	for _, d := range payload.Devices {
		info := types.DeviceInfo{
			ID:           d.Name[strings.LastIndex(d.Name, "/")+1:],
			Type:         d.Type,
			Name:         stringTrait(d.Traits, traitInfo, "customName"),
			IsThermostat: strings.Contains(d.Type, "THERMOSTAT"),
		}
		if info.IsThermostat {
			info.State = parseDeviceState(d.Traits)
		}
		devices = append(devices, info)
	}
	return devices, nil
}
