package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsPublisher pushes service counters to CloudWatch.
type MetricsPublisher struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsPublisher returns a publisher writing under the given namespace.
func NewMetricsPublisher(client CloudWatchAPI, namespace string) *MetricsPublisher {
	return &MetricsPublisher{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records a single count datapoint, with optional string dimensions.
func (m *MetricsPublisher) Count(ctx context.Context, name string, value float64, dimensions map[string]string) error {
	datum := cwtypes.MetricDatum{
		MetricName: awsString(name),
		Timestamp:  timePtr(m.nowFunc().UTC()),
		Unit:       cwtypes.StandardUnitCount,
		Value:      &value,
	}
	for k, v := range dimensions {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data %s: %w", name, err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
