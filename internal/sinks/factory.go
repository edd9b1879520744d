package sinks

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
)

var ErrUnknownSink = errors.New("unsupported or unknown sink")

// Options carries what the sink kinds need besides the calibration.
type Options struct {
	Path         string
	Out          io.Writer
	KafkaBrokers []string
	KafkaTopic   string
	KafkaTimeout time.Duration
}

// Factory creates one sink kind. It is what the dispatcher holds while
// calibration is pending.
type Factory struct {
	kind   string
	create func(mon.Calibration) (types.Sink, error)
}

func (f Factory) Kind() string { return f.kind }

func (f Factory) Create(cal mon.Calibration) (types.Sink, error) {
	return f.create(cal)
}

func NewSinkFactory(kind string, opts Options) (types.SinkFactory, error) {
	switch kind {
	case types.SinkDiscard:
		return Factory{kind: kind, create: func(mon.Calibration) (types.Sink, error) {
			return Discard{}, nil
		}}, nil
	case types.SinkStdout:
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		return Factory{kind: kind, create: func(cal mon.Calibration) (types.Sink, error) {
			return NewStdoutSink(out, cal), nil
		}}, nil
	case types.SinkFile:
		return Factory{kind: kind, create: func(cal mon.Calibration) (types.Sink, error) {
			return NewFileSink(opts.Path, cal)
		}}, nil
	case types.SinkTrace:
		return Factory{kind: kind, create: func(cal mon.Calibration) (types.Sink, error) {
			return NewTraceSink(opts.Path, cal)
		}}, nil
	case types.SinkKafka:
		return Factory{kind: kind, create: func(cal mon.Calibration) (types.Sink, error) {
			return NewKafkaSink(opts.KafkaBrokers, opts.KafkaTopic, opts.KafkaTimeout, cal)
		}}, nil
	default:
		return nil, ErrUnknownSink
	}
}
