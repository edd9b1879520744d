package types

import "github.com/ALEYI17/InfraSight_mon/pkg/mon"

type Sink interface {
	Record(ev mon.CalibratedEvent) error
	Finish() error
}

// SinkFactory builds a sink once the global calibration is known.
type SinkFactory interface {
	Kind() string
	Create(cal mon.Calibration) (Sink, error)
}
