package notify

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "pomodoro/sessions/notify"

const (
	pathScheduled = "scheduled"
	pathOverdue   = "overdue"
)

type Metrics struct {
	sent          metric.Int64Counter
	failed        metric.Int64Counter
	undeliverable metric.Int64Counter
	purged        metric.Int64Counter
}

// NewMetrics registers the poller counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	sent, err := meter.Int64Counter("notifications.sent", metric.WithDescription("Pushes confirmed by the sender"))
	if err != nil {
		return nil, fmt.Errorf("sent counter: %w", err)
	}
	failed, err := meter.Int64Counter("notifications.failed", metric.WithDescription("Failed send attempts"))
	if err != nil {
		return nil, fmt.Errorf("failed counter: %w", err)
	}
	undeliverable, err := meter.Int64Counter("notifications.undeliverable", metric.WithDescription("Boundaries given up after permanent failures"))
	if err != nil {
		return nil, fmt.Errorf("undeliverable counter: %w", err)
	}
	purged, err := meter.Int64Counter("notifications.purged", metric.WithDescription("Closed rows removed by retention"))
	if err != nil {
		return nil, fmt.Errorf("purged counter: %w", err)
	}

	return &Metrics{sent: sent, failed: failed, undeliverable: undeliverable, purged: purged}, nil
}

func (m *Metrics) recordSent(ctx context.Context, path string) {
	if m == nil {
		return
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

func (m *Metrics) recordFailed(ctx context.Context, path string, permanent bool) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path), attribute.Bool("permanent", permanent)))
}

func (m *Metrics) recordUndeliverable(ctx context.Context, path string) {
	if m == nil {
		return
	}
	m.undeliverable.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

func (m *Metrics) recordPurged(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.purged.Add(ctx, n)
}
