// Package dispatch routes node events through calibration into a sink that
// can be selected, swapped or removed while the producer keeps recording.
package dispatch

import (
	"github.com/ALEYI17/InfraSight_mon/internal/calibration"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Dispatcher is the entry point for producers. Producers never need to
// know whether a sink exists or calibration is done.
//
// A Dispatcher is not safe for concurrent use: Record, SelectSink,
// SetEnabled and Close must be serialized by the caller.
type Dispatcher struct {
	registry *calibration.Registry
	skip     SkipPolicy
	stats    *Stats

	sink     types.Sink
	sinkID   uuid.UUID
	sinkKind string
	pending  types.SinkFactory
	enabled  bool

	// fatal latches the first sink failure; the run is over after it.
	fatal error
}

func New(skip SkipPolicy, stats *Stats) *Dispatcher {
	if skip == nil {
		skip = DiscardSkip{}
	}
	d := &Dispatcher{
		skip:    skip,
		stats:   stats,
		enabled: true,
	}
	d.registry = calibration.NewRegistry(d.onCalibrated)
	return d
}

func (d *Dispatcher) Registry() *calibration.Registry { return d.registry }
func (d *Dispatcher) Stats() *Stats                   { return d.stats }
func (d *Dispatcher) SkipPolicy() SkipPolicy          { return d.skip }
func (d *Dispatcher) Enabled() bool                   { return d.enabled }

// Err returns the fatal error that aborted the run, if any.
func (d *Dispatcher) Err() error { return d.fatal }

// HasSink reports whether a sink is live.
func (d *Dispatcher) HasSink() bool { return d.sink != nil }

// Pending reports whether a sink waits for calibration.
func (d *Dispatcher) Pending() bool { return d.pending != nil }

// Record pushes ev through calibration and, once calibrated, into the sink
// or the skip policy. A non nil error is always a *FatalError.
func (d *Dispatcher) Record(ev mon.Event) error {
	if d.fatal != nil {
		return d.fatal
	}

	ce, forward := d.registry.Route(ev)
	if d.fatal != nil {
		return d.fatal
	}
	if !forward {
		return nil
	}

	if d.sink != nil && d.enabled {
		if err := d.deliver(ce); err != nil {
			return d.fail("record", err)
		}
		return nil
	}

	d.skip.Skip(ce)
	if d.stats != nil {
		d.stats.IncSkipped()
	}
	return nil
}

func (d *Dispatcher) deliver(ce mon.CalibratedEvent) error {
	if err := d.sink.Record(ce); err != nil {
		return err
	}
	if d.stats != nil {
		if ce.Kind == mon.KindInfo {
			d.stats.IncInfos()
		} else {
			d.stats.IncStates()
		}
	}
	return nil
}

// replay hands a buffered event to the sink. It was already counted as
// skipped, so the counters stay untouched.
func (d *Dispatcher) replay(ce mon.CalibratedEvent) error {
	return d.sink.Record(ce)
}

// SelectSink finishes the current sink, then creates the new one right
// away when calibration is done or once it completes.
func (d *Dispatcher) SelectSink(f types.SinkFactory) error {
	if d.fatal != nil {
		return d.fatal
	}
	if d.sink != nil {
		if err := d.closeSink(); err != nil {
			return err
		}
	}

	if d.registry.Calibrated() {
		return d.createSink(f)
	}
	d.pending = f
	logutil.GetLogger().Info("sink creation delayed until calibration", zap.String("sink", f.Kind()))
	return nil
}

func (d *Dispatcher) SetEnabled(enabled bool) {
	if enabled {
		logutil.GetLogger().Info("sink enabled")
	} else {
		logutil.GetLogger().Info("sink disabled")
	}
	d.enabled = enabled
}

// Close finishes and unselects the current sink and forgets any sink
// waiting for calibration.
func (d *Dispatcher) Close() error {
	d.pending = nil
	if d.sink == nil {
		return d.fatal
	}
	return d.closeSink()
}

func (d *Dispatcher) onCalibrated(mon.Calibration) {
	if d.pending == nil || d.fatal != nil {
		return
	}
	f := d.pending
	d.pending = nil
	// Errors are latched in d.fatal and returned by Record.
	_ = d.createSink(f)
}

func (d *Dispatcher) createSink(f types.SinkFactory) error {
	cal, _ := d.registry.Global()
	s, err := f.Create(cal)
	if err != nil {
		d.sinkKind = f.Kind()
		return d.fail("create", err)
	}
	d.sink = s
	d.sinkID = uuid.New()
	d.sinkKind = f.Kind()
	logutil.GetLogger().Info("sink selected",
		zap.String("sink", d.sinkKind),
		zap.String("id", d.sinkID.String()))

	if err := d.skip.SinkCreated(d.sinkID, d.replay); err != nil {
		return d.fail("replay", err)
	}
	return nil
}

func (d *Dispatcher) closeSink() error {
	err := d.sink.Finish()
	d.unselect()
	if err != nil {
		return d.fail("finish", err)
	}
	return nil
}

func (d *Dispatcher) unselect() {
	id := d.sinkID
	d.sink = nil
	d.sinkID = uuid.Nil
	d.skip.SinkRemoved(id)
	logutil.GetLogger().Warn("sink unselected", zap.String("sink", d.sinkKind), zap.String("id", id.String()))
}

// fail latches a fatal error. A sink that is still live is finished first
// so its file handle is released.
func (d *Dispatcher) fail(op string, err error) error {
	if d.sink != nil {
		err = multierr.Append(err, d.sink.Finish())
		d.unselect()
	}
	d.pending = nil
	d.fatal = &FatalError{Op: op, Sink: d.sinkKind, Err: err}
	logutil.GetLogger().Error("sink failure, aborting run",
		zap.String("op", op),
		zap.String("sink", d.sinkKind),
		zap.Error(err))
	return d.fatal
}
