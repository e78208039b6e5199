// Package telemetry records agent-side counters through OpenTelemetry.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the agent's counters. A nil *Metrics is valid and records
// nothing, so components never gate their hot paths on telemetry being wired.
type Metrics struct {
	ticks           metric.Int64Counter
	flushedEvents   metric.Int64Counter
	flushFailures   metric.Int64Counter
	violations      metric.Int64Counter
	captureFailures metric.Int64Counter
}

// NewMetrics registers the agent counters on the given meter provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("hybrid-workforce/agent")

	m := &Metrics{}
	var err error
	if m.ticks, err = meter.Int64Counter("agent.ticks",
		metric.WithDescription("Activity sampling ticks collected")); err != nil {
		return nil, err
	}
	if m.flushedEvents, err = meter.Int64Counter("agent.flush.events",
		metric.WithDescription("Activity events accepted by the backend")); err != nil {
		return nil, err
	}
	if m.flushFailures, err = meter.Int64Counter("agent.flush.failures",
		metric.WithDescription("Batch flushes that failed or were rejected")); err != nil {
		return nil, err
	}
	if m.violations, err = meter.Int64Counter("agent.policy.violations",
		metric.WithDescription("Policy violations detected")); err != nil {
		return nil, err
	}
	if m.captureFailures, err = meter.Int64Counter("agent.capture.failures",
		metric.WithDescription("Screenshot captures that failed")); err != nil {
		return nil, err
	}
	return m, nil
}

// AddTick records one collected sample.
func (m *Metrics) AddTick(ctx context.Context) {
	if m == nil {
		return
	}
	m.ticks.Add(ctx, 1)
}

// AddFlushedEvents records n events confirmed by the backend.
func (m *Metrics) AddFlushedEvents(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.flushedEvents.Add(ctx, int64(n))
}

// AddFlushFailure records one failed or rejected batch flush.
func (m *Metrics) AddFlushFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.flushFailures.Add(ctx, 1)
}

// AddViolation records one detected policy violation.
func (m *Metrics) AddViolation(ctx context.Context) {
	if m == nil {
		return
	}
	m.violations.Add(ctx, 1)
}

// AddCaptureFailure records one failed screenshot capture.
func (m *Metrics) AddCaptureFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.captureFailures.Add(ctx, 1)
}
