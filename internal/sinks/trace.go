package sinks

import (
	"fmt"
	"os"

	"github.com/ALEYI17/InfraSight_mon/internal/trace"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TraceSink records events into a scoped trace file. Records go straight
// to the file, one write each.
type TraceSink struct {
	path string
	f    *os.File
	w    *trace.Writer
}

func NewTraceSink(path string, cal mon.Calibration) (*TraceSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%s sink: cannot open/create %q: %w", types.SinkTrace, path, err)
	}
	w, err := trace.NewWriter(f, cal)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%s sink: %w", types.SinkTrace, err), f.Close())
	}
	logutil.GetLogger().Info("trace sink created", zap.String("path", path))
	return &TraceSink{path: path, f: f, w: w}, nil
}

func (s *TraceSink) Record(ev mon.CalibratedEvent) error {
	if err := s.w.WriteEvent(ev.Event); err != nil {
		return fmt.Errorf("%s sink: cannot write %s event: %w", types.SinkTrace, ev.Kind, err)
	}
	return nil
}

func (s *TraceSink) Finish() error {
	if err := multierr.Combine(s.f.Sync(), s.f.Close()); err != nil {
		return fmt.Errorf("%s sink: close error: %w", types.SinkTrace, err)
	}
	logutil.GetLogger().Info("trace sink closed",
		zap.String("path", s.path),
		zap.Int("records", s.w.Records()))
	return nil
}
