package action

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics are recorded on the global meter provider; without an SDK installed
// they are no-ops.
type metrics struct {
	claimed   metric.Int64Counter
	completed metric.Int64Counter
	reaped    metric.Int64Counter
}

func newMetrics() *metrics {
	m := otel.Meter("inboxrelay/action")
	claimed, _ := m.Int64Counter("actions.claimed",
		metric.WithDescription("Actions handed to the extension by a claim call"))
	completed, _ := m.Int64Counter("actions.completed",
		metric.WithDescription("Completion reports by resulting status"))
	reaped, _ := m.Int64Counter("actions.reaped",
		metric.WithDescription("Stale locks reclaimed by the reaper by result"))
	return &metrics{claimed: claimed, completed: completed, reaped: reaped}
}

func (m *metrics) addClaimed(ctx context.Context, n int) {
	if m == nil || m.claimed == nil || n == 0 {
		return
	}
	m.claimed.Add(ctx, int64(n))
}

func (m *metrics) addCompleted(ctx context.Context, status Status) {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *metrics) addReaped(ctx context.Context, result string) {
	if m == nil || m.reaped == nil {
		return
	}
	m.reaped.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
