package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "switchboard"

// Metrics holds all Switchboard metric instruments.
type Metrics struct {
	Decisions        metric.Int64Counter
	DispatchFailures metric.Int64Counter
	MemoryStores     metric.Int64Counter
	MemoryRecalls    metric.Int64Counter
	StorageFallbacks metric.Int64Counter
	RecallDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Decisions, err = meter.Int64Counter("switchboard.routing.decisions",
		metric.WithDescription("Number of routing decisions made"))
	if err != nil {
		return nil, err
	}

	m.DispatchFailures, err = meter.Int64Counter("switchboard.routing.dispatch_failures",
		metric.WithDescription("Number of agent dispatch failures"))
	if err != nil {
		return nil, err
	}

	m.MemoryStores, err = meter.Int64Counter("switchboard.memory.stores",
		metric.WithDescription("Number of memory records stored"))
	if err != nil {
		return nil, err
	}

	m.MemoryRecalls, err = meter.Int64Counter("switchboard.memory.recalls",
		metric.WithDescription("Number of memory recall queries"))
	if err != nil {
		return nil, err
	}

	m.StorageFallbacks, err = meter.Int64Counter("switchboard.memory.storage_fallbacks",
		metric.WithDescription("Number of primary-storage fallbacks to file"))
	if err != nil {
		return nil, err
	}

	m.RecallDuration, err = meter.Float64Histogram("switchboard.memory.recall_duration_seconds",
		metric.WithDescription("Recall query duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
