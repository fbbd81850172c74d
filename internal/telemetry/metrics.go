// Package telemetry publishes flood run and API metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"floodfactor/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements types.MetricsPublisher.
//
// Metrics emitted per run:
//   - FloodRunCompleted or FloodRunFailed: Dims {Algorithm} or {ErrorCode}
//   - FloodRunDuration: Dims {Algorithm}
//   - FloodSimulationIterations, FloodedAreaKm2, PeakRunoffCFS: successful runs only
//
// Publishing failures are logged and never returned.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ types.MetricsPublisher = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics publishes under namespace, or types.MetricNamespace
// when it is empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: dims,
	}
}

// RecordRun emits the outcome of one run in a single PutMetricData call.
func (m *CloudWatchMetrics) RecordRun(ctx context.Context, algorithm string, duration time.Duration, result *types.FloodResult, err error) {
	if algorithm == "" {
		algorithm = "unknown"
	}
	alg := dim(types.DimAlgorithm, algorithm)

	var data []cwtypes.MetricDatum
	if err != nil {
		data = append(data, datum(types.MetricRunFailed, 1, cwtypes.StandardUnitCount,
			dim(types.DimErrorCode, string(types.CodeOf(err)))))
	} else {
		data = append(data, datum(types.MetricRunCompleted, 1, cwtypes.StandardUnitCount, alg))
		if result != nil {
			data = append(data,
				datum(types.MetricSimIterations, float64(result.Iterations), cwtypes.StandardUnitCount, alg),
				datum(types.MetricFloodedAreaKm2, result.FloodedAreaKm2, cwtypes.StandardUnitNone),
				datum(types.MetricPeakRunoffCFS, result.PeakRunoffCFS, cwtypes.StandardUnitNone),
			)
		}
	}
	data = append(data, datum(types.MetricRunDuration, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, alg))

	m.put(ctx, data, "run")
}

// RecordRequest emits API latency and a request count per endpoint and
// status code.
func (m *CloudWatchMetrics) RecordRequest(ctx context.Context, endpoint string, status int, duration time.Duration) {
	ep := dim(types.DimEndpoint, endpoint)
	m.put(ctx, []cwtypes.MetricDatum{
		datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, ep),
		datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, ep, dim(types.DimStatus, strconv.Itoa(status))),
	}, "request")
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum, kind string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics", "kind", kind, "error", err)
	}
}
