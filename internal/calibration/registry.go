package calibration

import (
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"go.uber.org/zap"
)

// Registry owns one Node per node ID and freezes the global calibration
// from the first node that completes its preamble. Every node is assumed to
// share that calibration. Not safe for concurrent use.
type Registry struct {
	nodes        map[uint16]*Node
	global       *mon.Calibration
	source       uint16
	onCalibrated func(mon.Calibration)
}

// NewRegistry calls onCalibrated exactly once, when the global calibration
// is frozen. onCalibrated may be nil.
func NewRegistry(onCalibrated func(mon.Calibration)) *Registry {
	return &Registry{
		nodes:        make(map[uint16]*Node),
		onCalibrated: onCalibrated,
	}
}

func (r *Registry) ensureNode(id uint16) *Node {
	n, ok := r.nodes[id]
	if !ok {
		n = NewNode(id)
		r.nodes[id] = n
	}
	return n
}

// Route feeds ev to its node calibrator. It returns the calibrated event
// and true when ev must reach a sink.
func (r *Registry) Route(ev mon.Event) (mon.CalibratedEvent, bool) {
	n := r.ensureNode(ev.NodeID)
	forward := n.Feed(ev)

	if r.global == nil && n.Initiated() {
		cal, _ := n.Calibration()
		r.global = &cal
		r.source = n.ID()
		logutil.GetLogger().Info("global calibration frozen",
			zap.Uint16("node", n.ID()),
			zap.Stringer("order", cal.Order))
		if r.onCalibrated != nil {
			r.onCalibrated(cal)
		}
	}

	if !forward || r.global == nil {
		return mon.CalibratedEvent{}, false
	}
	return mon.CalibratedEvent{Event: ev, Calibration: r.global}, true
}

// Global returns the frozen calibration.
func (r *Registry) Global() (mon.Calibration, bool) {
	if r.global == nil {
		return mon.Calibration{}, false
	}
	return *r.global, true
}

// Calibrated reports whether the global calibration is frozen.
func (r *Registry) Calibrated() bool { return r.global != nil }

// Source is the node the global calibration was taken from.
func (r *Registry) Source() (uint16, bool) { return r.source, r.global != nil }

func (r *Registry) Node(id uint16) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// Forget drops the calibrator of a removed node. A node seen again later
// starts over from the preamble.
func (r *Registry) Forget(id uint16) {
	delete(r.nodes, id)
}

func (r *Registry) Len() int { return len(r.nodes) }
