package registry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	metricsOnce   sync.Once
	reloadCounter metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("flowmatic/registry")
		counter, err := meter.Int64Counter(
			"flowmatic_agent_reloads_total",
			metric.WithDescription("Total number of agent configuration reload attempts"),
		)
		if err != nil {
			return
		}
		reloadCounter = counter
	})
}

func recordReload(outcome string) {
	initMetrics()
	if reloadCounter == nil {
		return
	}
	reloadCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
