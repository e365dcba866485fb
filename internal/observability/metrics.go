package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ramcharankhv-byte/taskhub"

var (
	metricsOnce      sync.Once
	authEventCounter metric.Int64Counter
	projectCounter   metric.Int64Counter
	taskCounter      metric.Int64Counter
)

func initCounters() {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)
		authEventCounter, _ = meter.Int64Counter("auth_events_total",
			metric.WithDescription("Authentication flow outcomes by flow and result"))
		projectCounter, _ = meter.Int64Counter("project_events_total",
			metric.WithDescription("Project and membership operations by action and result"))
		taskCounter, _ = meter.Int64Counter("task_events_total",
			metric.WithDescription("Task and subtask operations by action and result"))
	})
}

// RecordAuthEvent counts one auth flow outcome, e.g. ("login", "success").
func RecordAuthEvent(ctx context.Context, flow, outcome string) {
	initCounters()
	if authEventCounter == nil {
		return
	}
	authEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func RecordProjectEvent(ctx context.Context, action, outcome string) {
	initCounters()
	if projectCounter == nil {
		return
	}
	projectCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordTaskEvent(ctx context.Context, action, outcome string) {
	initCounters()
	if taskCounter == nil {
		return
	}
	taskCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}
