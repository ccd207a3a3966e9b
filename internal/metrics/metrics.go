// Package metrics publishes batch outcomes of a run to CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/randyridgley/cdk-athena-federated/internal/loader"
)

type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ PutMetricDataAPI = (*cloudwatch.Client)(nil)

// Recorder collects batch results during a run and publishes them once at
// the end, so a run costs one PutMetricData call instead of one per batch.
type Recorder struct {
	namespace string
	client    PutMetricDataAPI
	now       func() time.Time

	outcomes map[loader.Outcome]int
	records  map[loader.Outcome]int
	latency  []float64
}

func NewRecorder(namespace string, client PutMetricDataAPI) *Recorder {
	return &Recorder{
		namespace: namespace,
		client:    client,
		now:       time.Now,
		outcomes:  map[loader.Outcome]int{},
		records:   map[loader.Outcome]int{},
	}
}

func (r *Recorder) ObserveBatch(result loader.BatchResult) {
	r.outcomes[result.Outcome]++
	r.records[result.Outcome] += result.Size
	r.latency = append(r.latency, float64(result.Duration.Milliseconds()))
}

// Publish sends the collected counts. A recorder without a client or
// namespace does nothing.
func (r *Recorder) Publish(ctx context.Context, summary *loader.Summary) error {
	if r.client == nil || r.namespace == "" || summary == nil {
		return nil
	}

	ts := aws.Time(r.now())
	var data []types.MetricDatum
	for _, outcome := range []loader.Outcome{
		loader.OutcomeSuccess,
		loader.OutcomeKVFailed,
		loader.OutcomeCacheFailed,
		loader.OutcomeBothFailed,
	} {
		dims := []types.Dimension{{Name: aws.String("Outcome"), Value: aws.String(string(outcome))}}
		data = append(data,
			types.MetricDatum{
				MetricName: aws.String("Batches"),
				Dimensions: dims,
				Value:      aws.Float64(float64(r.outcomes[outcome])),
				Unit:       types.StandardUnitCount,
				Timestamp:  ts,
			},
			types.MetricDatum{
				MetricName: aws.String("Records"),
				Dimensions: dims,
				Value:      aws.Float64(float64(r.records[outcome])),
				Unit:       types.StandardUnitCount,
				Timestamp:  ts,
			},
		)
	}
	data = append(data, types.MetricDatum{
		MetricName: aws.String("RunDuration"),
		Value:      aws.Float64(float64(summary.Duration.Milliseconds())),
		Unit:       types.StandardUnitMilliseconds,
		Timestamp:  ts,
	})
	if len(r.latency) > 0 {
		data = append(data, latencyDatum(r.latency, ts))
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}
	return nil
}

func latencyDatum(values []float64, ts *time.Time) types.MetricDatum {
	stats := &types.StatisticSet{
		Minimum:     aws.Float64(values[0]),
		Maximum:     aws.Float64(values[0]),
		SampleCount: aws.Float64(float64(len(values))),
	}
	sum := 0.0
	for _, v := range values {
		sum += v
		if v < *stats.Minimum {
			stats.Minimum = aws.Float64(v)
		}
		if v > *stats.Maximum {
			stats.Maximum = aws.Float64(v)
		}
	}
	stats.Sum = aws.Float64(sum)
	return types.MetricDatum{
		MetricName:      aws.String("BatchLatency"),
		StatisticValues: stats,
		Unit:            types.StandardUnitMilliseconds,
		Timestamp:       ts,
	}
}
