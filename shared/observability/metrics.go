package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the instruments recorded by the conversation orchestrator.
// A nil *Metrics records nothing.
type Metrics struct {
	streamRequests metric.Int64Counter
	streamFailures metric.Int64Counter
	streamDuration metric.Float64Histogram
	groupReplies   metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("chatmallu/client")

	streamRequests, err := meter.Int64Counter("chatmallu_stream_requests_total",
		metric.WithDescription("Chat requests sent to the inference server"))
	if err != nil {
		return nil, err
	}
	streamFailures, err := meter.Int64Counter("chatmallu_stream_failures_total",
		metric.WithDescription("Chat requests that failed or were cancelled"))
	if err != nil {
		return nil, err
	}
	streamDuration, err := meter.Float64Histogram("chatmallu_stream_duration_seconds",
		metric.WithDescription("Time from request to the end of the response stream"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	groupReplies, err := meter.Int64Counter("chatmallu_group_replies_total",
		metric.WithDescription("Character replies committed to group chats"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		streamRequests: streamRequests,
		streamFailures: streamFailures,
		streamDuration: streamDuration,
		groupReplies:   groupReplies,
	}, nil
}

// RecordRequest records one finished request of the given kind
// ("chat", "group_parallel", "group_sequential", "suggestions", "summary").
func (m *Metrics) RecordRequest(ctx context.Context, kind string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.streamRequests.Add(ctx, 1, attrs)
	m.streamDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.streamFailures.Add(ctx, 1, attrs)
	}
}

// RecordGroupReply counts a reply committed in the given mode.
func (m *Metrics) RecordGroupReply(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.groupReplies.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
