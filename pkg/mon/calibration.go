package mon

// Calibration holds the byte order and instrumentation overheads measured
// from a node's calibration preamble.
type Calibration struct {
	RecordOffset Timestamp
	InfoOffset   Timestamp
	ByteOffset   Timestamp
	Order        ByteOrder
}

// StateTimestamp removes the cost of a state record call.
func (c Calibration) StateTimestamp(ts Timestamp) Timestamp {
	return ts.Reduce(c.RecordOffset, 1)
}

// InfoTimestamp removes the fixed info call cost and n times the per byte cost.
func (c Calibration) InfoTimestamp(ts Timestamp, n int) Timestamp {
	return ts.Reduce(c.InfoOffset, 1).Reduce(c.ByteOffset, n)
}

// CalibratedEvent is an event from an initiated node together with the
// frozen global calibration. Sinks only ever see this shape.
type CalibratedEvent struct {
	Event
	Calibration *Calibration
}

// Corrected returns the event timestamp minus the probe overhead.
func (e CalibratedEvent) Corrected() Timestamp {
	if e.Kind == KindInfo {
		return e.Calibration.InfoTimestamp(e.Timestamp, len(e.Payload))
	}
	return e.Calibration.StateTimestamp(e.Timestamp)
}
