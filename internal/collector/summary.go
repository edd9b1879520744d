package collector

import "github.com/ALEYI17/InfraSight_mon/pkg/mon"

// NodeSummary describes what one node sent to the sink since the last
// flush. Timestamps are corrected.
type NodeSummary struct {
	Node uint16

	// Counts
	States uint64
	Infos  uint64

	// Payload
	PayloadBytes uint64
	MaxPayload   int
	AvgPayload   float64

	First    mon.Timestamp
	Last     mon.Timestamp
	FirstSim int64
	LastSim  int64

	// Events per simulated second, zero while the window is empty.
	EventRate float64
}

func (s NodeSummary) Events() uint64 { return s.States + s.Infos }
