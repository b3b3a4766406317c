package checkout

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts checkout submissions by outcome.
type Metrics struct {
	submissions metric.Int64Counter
	duration    metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	submissions, err := meter.Int64Counter("storefront.checkout.submissions",
		metric.WithDescription("Checkout submissions by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("storefront.checkout.duration",
		metric.WithDescription("Time spent waiting for the order service"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{submissions: submissions, duration: duration}, nil
}

func (m *Metrics) record(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.submissions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
