// Command discover-nest lists the devices visible to the configured Google
// Smart Device Management project and prints the IDs of the thermostats, to
// be copied into NEST_DEVICE_ID.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"thermostat/internal/config"
	"thermostat/internal/external"
	"thermostat/internal/types"
)

func main() {
	if err := run(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer) error {
	cfg, err := config.LoadNestConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.ProjectID == "" || !cfg.RefreshToken.IsSet() {
		return fmt.Errorf("NEST_PROJECT_ID, NEST_CLIENT_ID, NEST_CLIENT_SECRET and NEST_REFRESH_TOKEN must be set")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	creds := external.NewCredentialCache(external.CredentialCacheConfig{Logger: logger})
	creds.Register(types.APINest, external.RefreshTokenGrant(
		cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken,
	))
	client := external.NewNestClient(nil, creds, external.NestConfig{
		ProjectID: cfg.ProjectID,
		BaseURL:   cfg.BaseURL,
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	devices, err := client.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	return printDevices(out, devices)
}

func printDevices(out io.Writer, devices []types.DeviceInfo) error {
	fmt.Fprintf(out, "Found %d device(s)\n", len(devices))

	thermostats := 0
	for _, d := range devices {
		if !d.IsThermostat {
			fmt.Fprintf(out, "\n  %s (%s)\n", d.ID, d.Type)
			continue
		}
		thermostats++
		fmt.Fprintf(out, "\n  Thermostat %s\n", d.ID)
		if d.Name != "" {
			fmt.Fprintf(out, "    name: %s\n", d.Name)
		}
		if d.State != nil {
			state, err := json.MarshalIndent(d.State, "    ", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "    state: %s\n", state)
		}
		fmt.Fprintf(out, "    NEST_DEVICE_ID=%s\n", d.ID)
	}

	if thermostats == 0 {
		fmt.Fprintln(out, "\nNo thermostats found.")
	}
	return nil
}
