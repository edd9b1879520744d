package tap

import (
	"context"
	"errors"

	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.uber.org/zap"
)

// Host is what a replay drives: node attach/detach plus event recording.
type Host interface {
	Recorder
	AddNode(id int) error
	RemoveNode(id uint16)
}

type attached struct {
	tap *Tap
	ram RAM
}

// Replayer applies capture records to one tap per attached node.
type Replayer struct {
	host   Host
	layout Layout
	nodes  map[uint16]*attached
}

func NewReplayer(host Host, layout Layout) *Replayer {
	return &Replayer{
		host:   host,
		layout: layout,
		nodes:  make(map[uint16]*attached),
	}
}

// Apply handles one record. Records for nodes that are not attached are
// dropped. Only errors returned by the host stop a replay; bad info
// pointers are logged.
func (r *Replayer) Apply(rec Record) error {
	logger := logutil.GetLogger()

	switch rec.Flag {
	case types.CAPTURE_ATTACH:
		if _, ok := r.nodes[rec.Node]; ok {
			return nil
		}
		// Rejected nodes are logged by the host; their writes are dropped.
		if err := r.host.AddNode(int(rec.Node)); err != nil {
			return nil
		}
		ram := NewRAM()
		r.nodes[rec.Node] = &attached{tap: New(rec.Node, r.layout, ram, r.host), ram: ram}

	case types.CAPTURE_DETACH:
		if _, ok := r.nodes[rec.Node]; !ok {
			return nil
		}
		delete(r.nodes, rec.Node)
		r.host.RemoveNode(rec.Node)

	case types.CAPTURE_MEMORY:
		n, ok := r.nodes[rec.Node]
		if !ok {
			return nil
		}
		if err := n.ram.Store(rec.Addr, rec.Bytes); err != nil {
			logger.Warn("Dropping memory record", zap.Uint16("node", rec.Node), zap.Error(err))
		}

	case types.CAPTURE_WRITE:
		n, ok := r.nodes[rec.Node]
		if !ok {
			return nil
		}
		if err := n.tap.Write(rec.Addr, rec.Data, rec.Timestamp, rec.SimTime); err != nil {
			if errors.Is(err, ErrMemory) {
				logger.Warn("Dropping info event", zap.Uint16("node", rec.Node), zap.Error(err))
				return nil
			}
			return err
		}
	}
	return nil
}

// Run applies records until the channel closes, ctx is cancelled or the
// host fails.
func (r *Replayer) Run(ctx context.Context, records <-chan Record) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := r.Apply(rec); err != nil {
				return err
			}
		}
	}
}

func (r *Replayer) Attached() int { return len(r.nodes) }
