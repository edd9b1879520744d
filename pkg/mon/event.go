package mon

import (
	"errors"
	"fmt"
	"math"
)

type Kind uint8

const (
	KindState Kind = iota + 1
	KindInfo
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindInfo:
		return "info"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxNodeID is the largest node identifier the monitor accepts. Node IDs
// travel as signed 16-bit values in the trace formats.
const MaxNodeID = math.MaxInt16

var ErrNodeIDRange = errors.New("node id exceeds 16-bit identifier space")

// Event is a raw record emitted by a node, exactly as the firmware wrote it:
// context, entity and state are still in the firmware byte order.
type Event struct {
	Kind      Kind
	Context   uint16
	Entity    uint16
	State     uint16
	Payload   []byte
	Timestamp Timestamp
	SimTime   int64
	NodeID    uint16
}

func NewStateEvent(context, entity, state uint16, ts Timestamp, simTime int64, node uint16) Event {
	return Event{
		Kind:      KindState,
		Context:   context,
		Entity:    entity,
		State:     state,
		Timestamp: ts,
		SimTime:   simTime,
		NodeID:    node,
	}
}

// NewInfoEvent copies payload so the producer may reuse its buffer.
func NewInfoEvent(context, entity uint16, payload []byte, ts Timestamp, simTime int64, node uint16) Event {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Event{
		Kind:      KindInfo,
		Context:   context,
		Entity:    entity,
		Payload:   p,
		Timestamp: ts,
		SimTime:   simTime,
		NodeID:    node,
	}
}

// CheckNodeID rejects identifiers outside the signed 16-bit range.
func CheckNodeID(id int) (uint16, error) {
	if id < 0 || id > MaxNodeID {
		return 0, fmt.Errorf("%w: %d", ErrNodeIDRange, id)
	}
	return uint16(id), nil
}
