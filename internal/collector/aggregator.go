package collector

import (
	"sort"
	"sync"

	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
)

// Simulation time is in microseconds.
const simSecond = 1e6

type Aggregator struct {
	mu    sync.Mutex
	nodes map[uint16]*NodeSummary
}

func NewAggregator() *Aggregator {
	return &Aggregator{nodes: make(map[uint16]*NodeSummary)}
}

func (a *Aggregator) ensureNode(ev mon.CalibratedEvent, ts mon.Timestamp) *NodeSummary {
	s, ok := a.nodes[ev.NodeID]
	if !ok {
		s = &NodeSummary{
			Node:     ev.NodeID,
			First:    ts,
			FirstSim: ev.SimTime,
		}
		a.nodes[ev.NodeID] = s
	}
	return s
}

func (a *Aggregator) Update(ev mon.CalibratedEvent) {
	ts := ev.Corrected()

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.ensureNode(ev, ts)
	switch ev.Kind {
	case mon.KindState:
		s.States++
	case mon.KindInfo:
		s.Infos++
		n := len(ev.Payload)
		s.PayloadBytes += uint64(n)
		s.AvgPayload = ((s.AvgPayload * float64(s.Infos-1)) + float64(n)) / float64(s.Infos)
		s.MaxPayload = max(s.MaxPayload, n)
	}
	s.Last = ts
	s.LastSim = ev.SimTime
}

// Snapshot returns the current summaries ordered by node.
func (a *Aggregator) Snapshot() []NodeSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collect()
}

// Flush returns the summaries and starts a new window.
func (a *Aggregator) Flush() []NodeSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.collect()
	clear(a.nodes)
	return out
}

func (a *Aggregator) Forget(node uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.nodes, node)
}

func (a *Aggregator) collect() []NodeSummary {
	out := make([]NodeSummary, 0, len(a.nodes))
	for _, s := range a.nodes {
		sum := *s
		if span := float64(s.LastSim-s.FirstSim) / simSecond; span > 0 {
			sum.EventRate = float64(sum.Events()) / span
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}
