package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"thermostat/internal/types"
)

// AwairConfig holds the Awair adapter configuration.
type AwairConfig struct {
	Token      types.SecretString
	DeviceType string
	DeviceID   string
	BaseURL    string
	Reporter   HealthReporter
	Logger     *slog.Logger
	Now        func() time.Time
}

// AwairClient reads the latest air-data sample from an Awair device using a
// static developer token.
type AwairClient struct {
	base       *BaseClient
	token      types.SecretString
	deviceType string
	deviceID   string
	baseURL    string
	reporter   HealthReporter
	logger     *slog.Logger
	now        func() time.Time
}

// NewAwairClient creates an Awair adapter.
func NewAwairClient(base *BaseClient, cfg AwairConfig) *AwairClient {
	if base == nil {
		base = NewBaseClient(nil, types.APIAwair)
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
	deviceType := cfg.DeviceType
	if deviceType == "" {
		deviceType = "awair-element"
	}

	return &AwairClient{
		base:       base,
		token:      cfg.Token,
		deviceType: deviceType,
		deviceID:   cfg.DeviceID,
		baseURL:    cfg.BaseURL,
		reporter:   reporter,
		logger:     logger.With("component", "awair"),
		now:        now,
	}
}

// Name returns the source name.
func (c *AwairClient) Name() string { return types.SourceAwair }

// IsConfigured reports whether token and device id are present.
func (c *AwairClient) IsConfigured() bool {
	return c.token.IsSet() && c.deviceID != ""
}

// awairLatest covers both payload shapes the API has returned: a sensors
// array keyed by component, and flat fields on the sample.
type awairLatest struct {
	Data []struct {
		Timestamp string `json:"timestamp"`
		Sensors   []struct {
			Comp  string  `json:"comp"`
			Value float64 `json:"value"`
		} `json:"sensors"`
		Temp  *float64 `json:"temp"`
		Humid *float64 `json:"humid"`
		VOC   *float64 `json:"voc"`
		CO2   *float64 `json:"co2"`
		PM25  *float64 `json:"pm25"`
	} `json:"data"`
}

// FetchReading returns the latest sample converted to °F, or nil on any
// failure. Failures are logged and reported, never returned.
func (c *AwairClient) FetchReading(ctx context.Context) *types.Reading {
	if !c.IsConfigured() {
		return nil
	}

	reading, err := c.fetch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "awair fetch failed", "error", err)
		c.reporter.ReportError(types.APIAwair, err.Error())
		return nil
	}

	c.reporter.ReportSuccess(types.APIAwair)
	return reading
}

func (c *AwairClient) fetch(ctx context.Context) (*types.Reading, error) {
	endpoint := fmt.Sprintf("%s/users/self/devices/%s/%s/air-data/latest",
		c.baseURL, url.PathEscape(c.deviceType), url.PathEscape(c.deviceID))

	var payload awairLatest
	if err := c.base.getJSON(ctx, endpoint, c.token.Unmask(), types.ErrCodeUpstreamFetch, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamFetch, "awair returned no samples", nil)
	}

	sample := payload.Data[0]
	temp, humid := sample.Temp, sample.Humid
	aq := &types.AirQuality{VOC: sample.VOC, CO2: sample.CO2, PM25: sample.PM25}

	for _, s := range sample.Sensors {
		v := s.Value
		switch s.Comp {
		case "temp":
			temp = &v
		case "humid":
			humid = &v
		case "voc":
			aq.VOC = &v
		case "co2":
			aq.CO2 = &v
		case "pm25":
			aq.PM25 = &v
		}
	}

	if temp == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFetch, "awair sample has no temperature", nil)
	}

	return &types.Reading{
		Source:      types.SourceAwair,
		Timestamp:   c.now().UTC(),
		Temperature: types.FahrenheitPtr(temp),
		Humidity:    humid,
		AirQuality:  aq,
	}, nil
}
