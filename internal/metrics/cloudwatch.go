// Package metrics publishes control-cycle telemetry.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"thermostat/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder emits one PutMetricData batch per control cycle.
//
// Metrics emitted:
//   - CycleDuration, UnhealthyAPIs, CycleFailure: every cycle
//   - AverageTemperature, TargetTemperature, SensorCount: evaluated cycles only
//   - ControlAction: Dims {Action}, evaluated cycles only
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to namespace. An empty
// namespace falls back to types.MetricNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger.With("component", "metrics"),
	}
}

// RecordCycle publishes the cycle report. Failures are logged, never returned.
func (r *CloudWatchRecorder) RecordCycle(ctx context.Context, report types.CycleReport) {
	failed := 0.0
	if report.Failed {
		failed = 1
	}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricCycleDuration),
			Value:      aws.Float64(float64(report.Duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		{
			MetricName: aws.String(types.MetricUnhealthyAPIs),
			Value:      aws.Float64(float64(report.UnhealthyAPIs)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String(types.MetricCycleFailure),
			Value:      aws.Float64(failed),
			Unit:       cwtypes.StandardUnitCount,
		},
	}

	if report.Evaluated {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String(types.MetricAverageTemperature),
				Value:      aws.Float64(report.AvgTemp),
				Unit:       cwtypes.StandardUnitNone,
			},
			cwtypes.MetricDatum{
				MetricName: aws.String(types.MetricTargetTemperature),
				Value:      aws.Float64(report.TargetTemp),
				Unit:       cwtypes.StandardUnitNone,
			},
			cwtypes.MetricDatum{
				MetricName: aws.String(types.MetricSensorCount),
				Value:      aws.Float64(float64(report.SensorCount)),
				Unit:       cwtypes.StandardUnitCount,
			},
			cwtypes.MetricDatum{
				MetricName: aws.String(types.MetricControlAction),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimAction),
						Value: aws.String(string(report.Recorded)),
					},
				},
			},
		)
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to record cycle metrics",
			"error", err.Error(),
			"cycle_id", report.CycleID,
		)
	}
}

// Noop discards every report. Used when METRICS_ENABLED is false.
type Noop struct{}

// RecordCycle implements the recorder interface.
func (Noop) RecordCycle(context.Context, types.CycleReport) {}
