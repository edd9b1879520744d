package sinks

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.uber.org/zap"
)

// StdoutSink prints one line per event with host ordered fields and the
// probe overhead removed from the timestamp.
type StdoutSink struct {
	out io.Writer
}

func NewStdoutSink(out io.Writer, cal mon.Calibration) *StdoutSink {
	fmt.Fprintf(out, "(mon) endianness: %s\n", cal.Order)
	fmt.Fprintf(out, "(mon) record offset: %d cycles, %.3fus\n", cal.RecordOffset.Cycles, cal.RecordOffset.Millis*1000)
	fmt.Fprintf(out, "(mon) info offset  : %d cycles, %.3fus\n", cal.InfoOffset.Cycles, cal.InfoOffset.Millis*1000)
	fmt.Fprintf(out, "(mon) byte offset  : %d cycles, %.3fus\n", cal.ByteOffset.Cycles, cal.ByteOffset.Millis*1000)
	logutil.GetLogger().Info("stdout sink created", zap.Stringer("order", cal.Order))
	return &StdoutSink{out: out}
}

func (s *StdoutSink) Record(ev mon.CalibratedEvent) error {
	ts := ev.Corrected()
	context, entity, state := codec.HostFields(ev)

	var err error
	switch ev.Kind {
	case mon.KindState:
		_, err = fmt.Fprintf(s.out, "(mon) @(node: %d cpu: %d %fms, sim: %fms) RECORD %d %d %d\n",
			ev.NodeID, ts.Cycles, ts.Millis, float64(ev.SimTime)/1000, context, entity, state)
	case mon.KindInfo:
		// The payload is opaque and printed as the firmware wrote it.
		_, err = fmt.Fprintf(s.out, "(mon) @(node: %d cpu: %d %fms, sim: %fms) INFO %d %d [%s]\n",
			ev.NodeID, ts.Cycles, ts.Millis, float64(ev.SimTime)/1000, context, entity, hex.EncodeToString(ev.Payload))
	default:
		err = fmt.Errorf("event kind %d", ev.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s sink: %w", types.SinkStdout, err)
	}
	return nil
}

func (s *StdoutSink) Finish() error {
	logutil.GetLogger().Info("stdout sink closed")
	return nil
}
