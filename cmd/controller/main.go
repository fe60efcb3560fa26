// Package main is the entry point for the thermostat controller.
//
// It loads configuration, connects to PostgreSQL, wires the sensor adapters,
// the Nest device client and the decision engine into the control loop, and
// serves the presentation API alongside it. SIGINT or SIGTERM stop both
// gracefully.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"thermostat/internal/api/handlers"
	"thermostat/internal/config"
	"thermostat/internal/control"
	"thermostat/internal/core"
	"thermostat/internal/db"
	"thermostat/internal/external"
	"thermostat/internal/health"
	"thermostat/internal/metrics"
	"thermostat/internal/scheduler"
	"thermostat/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("thermostat controller starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"target_temp", cfg.Control.TargetTemp,
		"threshold", cfg.Control.Threshold,
		"poll_interval", cfg.Control.PollInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		ConnectTimeout:    cfg.Database.AcquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	store := db.NewStore(pool)

	// A nil interface disables pinging; a typed nil pointer would not.
	var pinger health.Pinger
	if cfg.Health.HealthchecksURL != "" {
		pinger = external.NewHealthchecksClient(
			external.NewBaseClient(nil, "healthchecks"),
			cfg.Health.HealthchecksURL,
		)
	}
	monitor := health.NewMonitor(health.MonitorConfig{
		APIs:             []string{types.APIAwair, types.APIAirthings, types.APINest, types.APIDatabase},
		FailureThreshold: cfg.Health.FailureThreshold,
		Pinger:           pinger,
		Logger:           logger,
	})

	creds := external.NewCredentialCache(external.CredentialCacheConfig{
		Base:   external.NewBaseClient(nil, "oauth"),
		Margin: cfg.Health.TokenExpiryMargin,
		Logger: logger,
	})

	sensors := buildSensors(cfg, creds, monitor, logger)

	var nest *external.NestClient
	if cfg.NestEnabled() {
		creds.Register(types.APINest, external.RefreshTokenGrant(
			cfg.Nest.TokenURL, cfg.Nest.ClientID, cfg.Nest.ClientSecret, cfg.Nest.RefreshToken,
		))
		nest = external.NewNestClient(external.NewBaseClient(nil, types.APINest), creds, external.NestConfig{
			ProjectID: cfg.Nest.ProjectID,
			DeviceID:  cfg.Nest.DeviceID,
			BaseURL:   cfg.Nest.BaseURL,
			Reporter:  monitor,
			Logger:    logger,
		})
	} else {
		logger.Warn("nest not configured, running in observe-only mode")
		nest = external.NewNestClient(nil, nil, external.NestConfig{Logger: logger})
	}

	engine := control.NewEngine(control.EngineConfig{
		Store:  store,
		Device: nest,
		Params: control.Params{
			TargetTemp:       cfg.Control.TargetTemp,
			Threshold:        cfg.Control.Threshold,
			FanAlwaysOn:      cfg.Control.FanAlwaysOn,
			FanTimerDuration: cfg.Control.FanTimerDuration,
		},
		Logger: logger,
	})

	recorder, err := buildMetrics(ctx, cfg, logger)
	if err != nil {
		return err
	}

	loop := scheduler.NewLoop(scheduler.LoopConfig{
		Sensors:     sensors,
		Engine:      engine,
		Health:      monitor,
		Metrics:     recorder,
		Interval:    cfg.Control.PollInterval,
		CallTimeout: cfg.Control.CallTimeout,
		Logger:      logger,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{
		core.DatabaseProbe{DB: pool},
		core.LoopProbe{Loop: loop},
	}
	controlHandler := handlers.NewControlHandler(store, engine, monitor, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		controlHandler.RegisterRoutes(r)
	})
	srv.MountRoutes()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, ":"+cfg.Server.Port)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("thermostat controller stopped cleanly")
	return nil
}

// buildSensors returns the configured ambient sensors. Unconfigured sensors
// are left out of the loop entirely.
func buildSensors(cfg *config.Config, creds *external.CredentialCache, monitor *health.Monitor, logger *slog.Logger) []scheduler.Sensor {
	var sensors []scheduler.Sensor

	if cfg.AwairEnabled() {
		sensors = append(sensors, external.NewAwairClient(
			external.NewBaseClient(nil, types.APIAwair),
			external.AwairConfig{
				Token:      cfg.Awair.Token,
				DeviceType: cfg.Awair.DeviceType,
				DeviceID:   cfg.Awair.DeviceID,
				BaseURL:    cfg.Awair.BaseURL,
				Reporter:   monitor,
				Logger:     logger,
			},
		))
	} else {
		logger.Warn("awair not configured, sensor disabled")
	}

	if cfg.AirthingsEnabled() {
		creds.Register(types.APIAirthings, external.ClientCredentialsGrant(
			cfg.Airthings.TokenURL, cfg.Airthings.ClientID, cfg.Airthings.ClientSecret, cfg.Airthings.Scope,
		))
		sensors = append(sensors, external.NewAirthingsClient(
			external.NewBaseClient(nil, types.APIAirthings),
			creds,
			external.AirthingsConfig{
				DeviceID: cfg.Airthings.DeviceID,
				BaseURL:  cfg.Airthings.BaseURL,
				Reporter: monitor,
				Logger:   logger,
			},
		))
	} else {
		logger.Warn("airthings not configured, sensor disabled")
	}

	return sensors
}

func buildMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scheduler.MetricsRecorder, error) {
	if !cfg.Observability.MetricsEnabled {
		return metrics.Noop{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Observability.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return metrics.NewCloudWatchRecorder(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		logger,
	), nil
}

// newLogger creates a JSON slog.Logger at the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
