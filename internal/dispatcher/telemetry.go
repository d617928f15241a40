package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// metrics records dispatch counters on the global meter provider. Without a
// configured provider the instruments are no-ops.
type metrics struct {
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
}

func newMetrics(meter metric.Meter, log logger.Logger) *metrics {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	decisions, err := meter.Int64Counter("hookgate.dispatch.decisions",
		metric.WithDescription("Dispatch decisions by event and outcome"),
	)
	if err != nil {
		log.Warn("cannot create dispatch counter", "error", err)

		decisions, _ = fallback.Int64Counter("hookgate.dispatch.decisions")
	}

	duration, err := meter.Float64Histogram("hookgate.dispatch.duration",
		metric.WithDescription("Wall time of dispatches that ran at least one hook"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.Warn("cannot create dispatch histogram", "error", err)

		duration, _ = fallback.Float64Histogram("hookgate.dispatch.duration")
	}

	return &metrics{decisions: decisions, duration: duration}
}

func (m *metrics) recordDispatch(ctx context.Context, event hook.Event, d hook.Decision, elapsed time.Duration) {
	outcome := "allow"

	switch {
	case d.Cancelled():
		outcome = "cancelled"
	case !d.Allowed:
		outcome = "deny"
	}

	// The dispatch ctx may already be cancelled; metrics are recorded anyway.
	ctx = context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(
		attribute.String("event", event.String()),
		attribute.String("decision", outcome),
	)

	m.decisions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
