package dispatch

import (
	"fmt"

	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SkipPolicy decides what happens to calibrated events that cannot reach
// a sink, because none is selected or the dispatcher is disabled.
type SkipPolicy interface {
	Kind() string
	Skip(ev mon.CalibratedEvent)
	// SinkCreated runs once a new sink is live, before any regular event
	// reaches it. deliver forwards an event to that sink.
	SinkCreated(id uuid.UUID, deliver func(mon.CalibratedEvent) error) error
	// SinkRemoved runs after the sink id was finished and unselected.
	SinkRemoved(id uuid.UUID)
}

func NewSkipPolicy(kind string) (SkipPolicy, error) {
	switch kind {
	case types.SkipDiscard:
		return DiscardSkip{}, nil
	case types.SkipBuffer:
		return &BufferSkip{}, nil
	case types.SkipWarn:
		return WarnSkip{}, nil
	default:
		return nil, fmt.Errorf("unknown skip policy %q", kind)
	}
}

// DiscardSkip drops skipped events silently.
type DiscardSkip struct{}

func (DiscardSkip) Kind() string             { return types.SkipDiscard }
func (DiscardSkip) Skip(mon.CalibratedEvent) {}
func (DiscardSkip) SinkRemoved(uuid.UUID)    {}
func (DiscardSkip) SinkCreated(uuid.UUID, func(mon.CalibratedEvent) error) error {
	return nil
}

// WarnSkip logs every skipped event and drops it.
type WarnSkip struct{}

func (WarnSkip) Kind() string { return types.SkipWarn }

func (WarnSkip) Skip(ev mon.CalibratedEvent) {
	logutil.GetLogger().Warn("event skipped",
		zap.Stringer("kind", ev.Kind),
		zap.Uint16("node", ev.NodeID),
		zap.Int64("cycles", ev.Timestamp.Cycles),
		zap.Float64("cpu_ms", ev.Timestamp.Millis),
		zap.Float64("sim_ms", float64(ev.SimTime)/1000))
}

func (WarnSkip) SinkRemoved(uuid.UUID) {}
func (WarnSkip) SinkCreated(uuid.UUID, func(mon.CalibratedEvent) error) error {
	return nil
}

// BufferSkip keeps skipped events in arrival order and replays them into
// the next sink that gets created.
type BufferSkip struct {
	buffer []mon.CalibratedEvent
}

func (b *BufferSkip) Kind() string { return types.SkipBuffer }

func (b *BufferSkip) Skip(ev mon.CalibratedEvent) {
	b.buffer = append(b.buffer, ev)
}

func (b *BufferSkip) SinkCreated(id uuid.UUID, deliver func(mon.CalibratedEvent) error) error {
	if len(b.buffer) == 0 {
		return nil
	}
	logutil.GetLogger().Info("replaying buffered events",
		zap.String("sink", id.String()),
		zap.Int("events", len(b.buffer)))

	for i, ev := range b.buffer {
		if err := deliver(ev); err != nil {
			b.buffer = b.buffer[i:]
			return err
		}
	}
	b.buffer = nil
	return nil
}

// SinkRemoved keeps the buffer: the replay happens when a sink is created.
func (b *BufferSkip) SinkRemoved(uuid.UUID) {}

// Len is the number of buffered events.
func (b *BufferSkip) Len() int { return len(b.buffer) }
