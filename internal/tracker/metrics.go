package tracker

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/musthaq16/vehicle-route-tracker/internal/tracker"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	requests         metric.Int64Counter
	failures         metric.Int64Counter
	stale            metric.Int64Counter
	ticks            metric.Int64Counter
	locationFailures metric.Int64Counter
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		inst instruments
		err  error
	)

	if inst.requests, err = m.Int64Counter("tracker.directions.requests",
		metric.WithDescription("Directions requests issued")); err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}
	if inst.failures, err = m.Int64Counter("tracker.directions.failures",
		metric.WithDescription("Directions requests that failed")); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	if inst.stale, err = m.Int64Counter("tracker.directions.stale",
		metric.WithDescription("Directions results discarded because a newer request was issued")); err != nil {
		return nil, fmt.Errorf("creating stale counter: %w", err)
	}
	if inst.ticks, err = m.Int64Counter("tracker.ticks",
		metric.WithDescription("Animation timer ticks handled")); err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	if inst.locationFailures, err = m.Int64Counter("tracker.location.failures",
		metric.WithDescription("Ticks skipped because no location sample was available")); err != nil {
		return nil, fmt.Errorf("creating location failures counter: %w", err)
	}

	return &inst, nil
}
