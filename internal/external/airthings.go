package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"thermostat/internal/types"
)

// AirthingsConfig holds the Airthings adapter configuration. The client
// credentials themselves live in the CredentialCache.
type AirthingsConfig struct {
	DeviceID string
	BaseURL  string
	Reporter HealthReporter
	Logger   *slog.Logger
	Now      func() time.Time
}

// AirthingsClient reads the latest samples from an Airthings device.
type AirthingsClient struct {
	base     *BaseClient
	creds    *CredentialCache
	deviceID string
	baseURL  string
	reporter HealthReporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewAirthingsClient creates an Airthings adapter. creds must have a grant
// registered under types.APIAirthings.
func NewAirthingsClient(base *BaseClient, creds *CredentialCache, cfg AirthingsConfig) *AirthingsClient {
	if base == nil {
		base = NewBaseClient(nil, types.APIAirthings)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = noopReporter{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &AirthingsClient{
		base:     base,
		creds:    creds,
		deviceID: cfg.DeviceID,
		baseURL:  cfg.BaseURL,
		reporter: reporter,
		logger:   logger.With("component", "airthings"),
		now:      now,
	}
}

// Name returns the source name.
func (c *AirthingsClient) Name() string { return types.SourceAirthings }

// IsConfigured reports whether a device id and credential cache are present.
func (c *AirthingsClient) IsConfigured() bool {
	return c.creds != nil && c.deviceID != ""
}

type airthingsSamples struct {
	Data struct {
		Temp              *float64 `json:"temp"`
		Humidity          *float64 `json:"humidity"`
		VOC               *float64 `json:"voc"`
		CO2               *float64 `json:"co2"`
		PM25              *float64 `json:"pm25"`
		RadonShortTermAvg *float64 `json:"radonShortTermAvg"`
	} `json:"data"`
}

// FetchReading returns the latest samples converted to °F, or nil on any
// failure. Failures are logged and reported, never returned.
func (c *AirthingsClient) FetchReading(ctx context.Context) *types.Reading {
	if !c.IsConfigured() {
		return nil
	}

	reading, err := c.fetch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "airthings fetch failed", "error", err)
		c.reporter.ReportError(types.APIAirthings, err.Error())
		return nil
	}

	c.reporter.ReportSuccess(types.APIAirthings)
	return reading
}

func (c *AirthingsClient) fetch(ctx context.Context) (*types.Reading, error) {
	token, err := c.creds.Token(ctx, types.APIAirthings)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/devices/%s/latest-samples", c.baseURL, url.PathEscape(c.deviceID))

	var payload airthingsSamples
	if err := c.base.getJSON(ctx, endpoint, token, types.ErrCodeUpstreamFetch, &payload); err != nil {
		if isUnauthorized(err) {
			c.creds.Invalidate(types.APIAirthings)
		}
		return nil, err
	}

	d := payload.Data
	if d.Temp == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFetch, "airthings sample has no temperature", nil)
	}

	return &types.Reading{
		Source:      types.SourceAirthings,
		Timestamp:   c.now().UTC(),
		Temperature: types.FahrenheitPtr(d.Temp),
		Humidity:    d.Humidity,
		AirQuality: &types.AirQuality{
			VOC:   d.VOC,
			CO2:   d.CO2,
			PM25:  d.PM25,
			Radon: d.RadonShortTermAvg,
		},
	}, nil
}
