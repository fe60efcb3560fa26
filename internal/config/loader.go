// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone so persisted timestamps and state values agree.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the controller configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := load(&cfg, func() { cfg.Build = NewBuildInfo() }); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadNestConfig loads only the Nest section. Tools that talk to the device
// API without a database use it.
func LoadNestConfig() (*NestConfig, error) {
	var cfg NestConfig
	if err := load(&cfg, nil); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// load runs the shared sequence against dst. beforeValidate, when set, fills
// fields that do not come from the environment.
func load(dst any, beforeValidate func()) error {
	time.Local = time.UTC

	// godotenv.Load does NOT override variables already in the environment.
	_ = godotenv.Load()

	if err := envconfig.Process("", dst); err != nil {
		return &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if beforeValidate != nil {
		beforeValidate()
	}

	if err := validator.New().Struct(dst); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return nil
}

// AwairEnabled reports whether the Awair adapter has enough configuration to run.
func (c *Config) AwairEnabled() bool {
	return c.Awair.Token.IsSet() && c.Awair.DeviceID != ""
}

// AirthingsEnabled reports whether the Airthings adapter has enough
// configuration to run.
func (c *Config) AirthingsEnabled() bool {
	return c.Airthings.ClientID != "" && c.Airthings.ClientSecret.IsSet() && c.Airthings.DeviceID != ""
}

// NestEnabled reports whether device control is configured. Project, device
// and refresh token must all be present.
func (c *Config) NestEnabled() bool {
	return c.Nest.ProjectID != "" && c.Nest.DeviceID != "" && c.Nest.RefreshToken.IsSet()
}
