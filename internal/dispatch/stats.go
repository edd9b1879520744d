package dispatch

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ALEYI17/InfraSight_mon"

// Stats counts what the dispatcher did. Values are atomics so a host may
// read them while the producer records; every change is mirrored into
// OpenTelemetry instruments.
type Stats struct {
	events  atomic.Int64
	states  atomic.Int64
	infos   atomic.Int64
	skipped atomic.Int64
	nodes   atomic.Int64

	recorded metric.Int64Counter
	skips    metric.Int64Counter
	attached metric.Int64UpDownCounter
}

type StatsSnapshot struct {
	Events  int64
	States  int64
	Infos   int64
	Skipped int64
	Nodes   int64
}

var (
	stateAttr = metric.WithAttributes(attribute.String("kind", "state"))
	infoAttr  = metric.WithAttributes(attribute.String("kind", "info"))
)

// NewStats uses the global meter provider when meter is nil.
func NewStats(meter metric.Meter) (*Stats, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	s := &Stats{}
	var err error
	if s.recorded, err = meter.Int64Counter("mon.events.recorded",
		metric.WithDescription("Events handed to a sink")); err != nil {
		return nil, err
	}
	if s.skips, err = meter.Int64Counter("mon.events.skipped",
		metric.WithDescription("Calibrated events that reached no sink")); err != nil {
		return nil, err
	}
	if s.attached, err = meter.Int64UpDownCounter("mon.nodes",
		metric.WithDescription("Nodes attached to the monitor")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stats) IncStates() {
	s.states.Add(1)
	s.events.Add(1)
	s.recorded.Add(context.Background(), 1, stateAttr)
}

func (s *Stats) IncInfos() {
	s.infos.Add(1)
	s.events.Add(1)
	s.recorded.Add(context.Background(), 1, infoAttr)
}

func (s *Stats) IncSkipped() {
	s.skipped.Add(1)
	s.events.Add(1)
	s.skips.Add(context.Background(), 1)
}

func (s *Stats) IncNodes() {
	s.nodes.Add(1)
	s.attached.Add(context.Background(), 1)
}

func (s *Stats) DecNodes() {
	s.nodes.Add(-1)
	s.attached.Add(context.Background(), -1)
}

// Restore seeds the event counters from persisted settings.
func (s *Stats) Restore(states, infos, skipped int64) {
	s.states.Store(states)
	s.infos.Store(infos)
	s.skipped.Store(skipped)
	s.events.Store(states + infos + skipped)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Events:  s.events.Load(),
		States:  s.states.Load(),
		Infos:   s.infos.Load(),
		Skipped: s.skipped.Load(),
		Nodes:   s.nodes.Load(),
	}
}
