// Package dump prints recorded monitor output, trace or flat file, with
// corrected timestamps.
package dump

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ALEYI17/InfraSight_mon/internal/sinks"
	"github.com/ALEYI17/InfraSight_mon/internal/trace"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
)

type source interface {
	Calibration() mon.Calibration
	next() (mon.Event, error)
}

type traceSource struct{ *trace.Reader }

func (s traceSource) next() (mon.Event, error) { return s.Event() }

type fileSource struct{ *sinks.FileReader }

func (s fileSource) next() (mon.Event, error) { return s.Next() }

// Dump writes one line per event of r to out and returns the number of
// events. The format is detected from the leading magic. infoLen is the
// payload size assumed for info records of flat files, which do not store
// it.
func Dump(r io.Reader, out io.Writer, infoLen int) (int, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(trace.Magic))
	if err != nil {
		return 0, fmt.Errorf("read magic: %w", err)
	}

	var src source
	if bytes.Equal(head, []byte(trace.Magic)) {
		tr, err := trace.NewReader(br)
		if err != nil {
			return 0, err
		}
		src = traceSource{tr}
	} else {
		fr, err := sinks.NewFileReader(br, func(mon.Event) int { return infoLen })
		if err != nil {
			return 0, err
		}
		src = fileSource{fr}
	}

	cal := src.Calibration()
	printer := sinks.NewStdoutSink(out, cal)
	n := 0
	for {
		ev, err := src.next()
		if errors.Is(err, io.EOF) {
			return n, printer.Finish()
		}
		if err != nil {
			return n, fmt.Errorf("event %d: %w", n, err)
		}
		if err := printer.Record(mon.CalibratedEvent{Event: ev, Calibration: &cal}); err != nil {
			return n, err
		}
		n++
	}
}
