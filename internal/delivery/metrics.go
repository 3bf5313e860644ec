package delivery

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"drivewatch/internal/types"
)

// CloudWatchClient is the slice of the CloudWatch API the recorder needs.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes one datum per delivery outcome
// (AlertDeliveryAttempt by mode and tier) and one per delivered alert
// (AlertDeliveryLatency by mode, milliseconds). Publish failures are only
// logged.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchMetrics{client: client, namespace: types.MetricNamespace, logger: logger}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Error("failed to put metric", "metric", aws.ToString(datum.MetricName), "error", err.Error())
	}
}

func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, mode types.DeliveryMode, tier types.ConfidenceTier) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimMode, string(mode)), dim(types.DimTier, string(tier))},
	})
}

func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, mode types.DeliveryMode, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{dim(types.DimMode, string(mode))},
	})
}
