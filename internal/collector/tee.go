package collector

import (
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
)

type teeFactory struct {
	inner types.SinkFactory
	agg   *Aggregator
}

// Tee wraps f so that every event its sinks accept is also summarized.
func Tee(f types.SinkFactory, agg *Aggregator) types.SinkFactory {
	return teeFactory{inner: f, agg: agg}
}

func (t teeFactory) Kind() string { return t.inner.Kind() }

func (t teeFactory) Create(cal mon.Calibration) (types.Sink, error) {
	s, err := t.inner.Create(cal)
	if err != nil {
		return nil, err
	}
	return &teeSink{inner: s, agg: t.agg}, nil
}

type teeSink struct {
	inner types.Sink
	agg   *Aggregator
}

func (t *teeSink) Record(ev mon.CalibratedEvent) error {
	if err := t.inner.Record(ev); err != nil {
		return err
	}
	t.agg.Update(ev)
	return nil
}

func (t *teeSink) Finish() error { return t.inner.Finish() }
