package mon

// TimestampSize is the encoded size of a Timestamp: cycles then millis.
const TimestampSize = 16

// Timestamp is a reading of the node CPU cycle counter and its millisecond
// clock taken at the same instant. It also stores durations (offsets).
type Timestamp struct {
	Cycles int64
	Millis float64
}

func NewTimestamp(cycles int64, millis float64) Timestamp {
	return Timestamp{Cycles: cycles, Millis: millis}
}

// Diff returns the absolute distance between two readings on both clocks.
func (t Timestamp) Diff(o Timestamp) Timestamp {
	c := o.Cycles - t.Cycles
	if c < 0 {
		c = -c
	}
	ms := o.Millis - t.Millis
	if ms < 0 {
		ms = -ms
	}
	return Timestamp{Cycles: c, Millis: ms}
}

// Reduce subtracts times*offset from both clocks.
func (t Timestamp) Reduce(offset Timestamp, times int) Timestamp {
	return Timestamp{
		Cycles: t.Cycles - int64(times)*offset.Cycles,
		Millis: t.Millis - float64(times)*offset.Millis,
	}
}

func (t Timestamp) IsZero() bool {
	return t.Cycles == 0 && t.Millis == 0
}

// Scale multiplies both clocks by n.
func (t Timestamp) Scale(n int) Timestamp {
	return Timestamp{Cycles: t.Cycles * int64(n), Millis: t.Millis * float64(n)}
}

// Div divides both clocks by n. Cycles are truncated.
func (t Timestamp) Div(n int) Timestamp {
	if n == 0 {
		return t
	}
	return Timestamp{Cycles: t.Cycles / int64(n), Millis: t.Millis / float64(n)}
}
