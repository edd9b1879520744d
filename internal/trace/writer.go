package trace

import (
	"fmt"
	"io"

	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
)

// Writer appends records to a trace. Each record is handed to the
// underlying writer in a single Write call, so an interrupted run never
// leaves half a record behind a completed Write.
type Writer struct {
	w       io.Writer
	buf     []byte
	records int
}

// NewWriter writes the trace header and the create record.
func NewWriter(w io.Writer, cal mon.Calibration) (*Writer, error) {
	tw := &Writer{w: w, buf: make([]byte, 0, 256)}

	hdr, err := AppendHeader(nil, cal)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("write trace header: %w", err)
	}
	return tw, nil
}

// AppendHeader encodes the magic, the version and the create record.
func AppendHeader(dst []byte, cal mon.Calibration) ([]byte, error) {
	dst = append(dst, Magic...)
	dst = codec.AppendU16(dst, Version, Order)
	return AppendRecord(dst, Record{
		Scopes: []Block{
			NodeScope{},
			SimulationScope{},
		},
		Element: CreateElement{Calibration: cal},
	})
}

func (tw *Writer) Write(rec Record) error {
	buf, err := AppendRecord(tw.buf[:0], rec)
	if err != nil {
		return err
	}
	tw.buf = buf
	if _, err := tw.w.Write(buf); err != nil {
		return fmt.Errorf("write trace record: %w", err)
	}
	tw.records++
	return nil
}

// WriteEvent writes ev with its node and simulation scopes.
func (tw *Writer) WriteEvent(ev mon.Event) error {
	return tw.Write(FromEvent(ev))
}

// Records is the number of event records written after the header.
func (tw *Writer) Records() int { return tw.records }
