// Package config defines the configuration structure for the thermostat
// controller. Configuration is loaded once at process start and is immutable
// thereafter; runtime-adjustable parameters (target temperature, fan mode)
// live in the store's state table and only take their defaults from here.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"thermostat/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Control       ControlConfig
	Awair         AwairConfig
	Airthings     AirthingsConfig
	Nest          NestConfig
	Health        HealthConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the presentation API listener configuration.
type ServerConfig struct {
	Port               string   `envconfig:"PORT" default:"3000"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"5" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ControlConfig holds the decision engine and poll loop parameters.
type ControlConfig struct {
	TargetTemp       float64       `envconfig:"TARGET_TEMP" default:"70" validate:"min=50,max=90"`
	Threshold        float64       `envconfig:"THRESHOLD" default:"1.5" validate:"gt=0"`
	FanAlwaysOn      bool          `envconfig:"FAN_ALWAYS_ON" default:"false"`
	FanTimerDuration time.Duration `envconfig:"FAN_TIMER_DURATION" default:"12h" validate:"gt=0"`
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"60s" validate:"gte=1s"`
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"10s" validate:"gt=0"`
}

// AwairConfig holds the Awair sensor credentials. The adapter is disabled when
// Token or DeviceID is empty.
type AwairConfig struct {
	Token      SecretString `envconfig:"AWAIR_TOKEN"`
	DeviceType string       `envconfig:"AWAIR_DEVICE_TYPE" default:"awair-element"`
	DeviceID   string       `envconfig:"AWAIR_DEVICE_ID"`
	BaseURL    string       `envconfig:"AWAIR_BASE_URL" default:"https://developer-apis.awair.is/v1" validate:"url"`
}

// AirthingsConfig holds the Airthings client-credentials grant.
type AirthingsConfig struct {
	ClientID     string       `envconfig:"AIRTHINGS_CLIENT_ID" validate:"required_with=ClientSecret"`
	ClientSecret SecretString `envconfig:"AIRTHINGS_CLIENT_SECRET"`
	DeviceID     string       `envconfig:"AIRTHINGS_DEVICE_ID"`
	TokenURL     string       `envconfig:"AIRTHINGS_TOKEN_URL" default:"https://accounts-api.airthings.com/v1/token" validate:"url"`
	BaseURL      string       `envconfig:"AIRTHINGS_BASE_URL" default:"https://ext-api.airthings.com/v1" validate:"url"`
	Scope        string       `envconfig:"AIRTHINGS_SCOPE" default:"read:device:current_values"`
}

// NestConfig holds the Google Smart Device Management credentials.
type NestConfig struct {
	ProjectID    string       `envconfig:"NEST_PROJECT_ID"`
	ClientID     string       `envconfig:"NEST_CLIENT_ID" validate:"required_with=RefreshToken"`
	ClientSecret SecretString `envconfig:"NEST_CLIENT_SECRET"`
	RefreshToken SecretString `envconfig:"NEST_REFRESH_TOKEN"`
	DeviceID     string       `envconfig:"NEST_DEVICE_ID"`
	TokenURL     string       `envconfig:"NEST_TOKEN_URL" default:"https://oauth2.googleapis.com/token" validate:"url"`
	BaseURL      string       `envconfig:"NEST_BASE_URL" default:"https://smartdevicemanagement.googleapis.com/v1" validate:"url"`
}

// HealthConfig holds dependency health tracking and liveness ping settings.
type HealthConfig struct {
	HealthchecksURL   string        `envconfig:"HEALTHCHECKS_URL" validate:"omitempty,url"`
	FailureThreshold  int           `envconfig:"HEALTH_FAILURE_THRESHOLD" default:"3" validate:"min=1"`
	TokenExpiryMargin time.Duration `envconfig:"TOKEN_EXPIRY_MARGIN" default:"5m" validate:"gte=0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Thermostat"`
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
