package calibration

import (
	"errors"
	"fmt"

	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.uber.org/zap"
)

type State uint8

const (
	StateEndian State = iota
	StateRecordOffset
	StateInfoFetch
	StateInfoU8Offset
	StateInfoU16Offset
	StateInitiated
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateEndian:
		return "endian"
	case StateRecordOffset:
		return "record-offset"
	case StateInfoFetch:
		return "info-fetch"
	case StateInfoU8Offset:
		return "info-u8-offset"
	case StateInfoU16Offset:
		return "info-u16-offset"
	case StateInitiated:
		return "initiated"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var ErrProtocolViolation = errors.New("calibration protocol violation")

// Node runs the calibration preamble of a single node:
//
//	state(magic) state info(len 0) info(len 1) info(len L != 1)
//
// and then lets every event through. Not safe for concurrent use.
type Node struct {
	id    uint16
	state State
	err   error

	last         mon.Timestamp
	infoOffsetU8 mon.Timestamp
	u8Len        int
	cal          mon.Calibration
}

func NewNode(id uint16) *Node {
	return &Node{id: id, state: StateEndian}
}

func (n *Node) ID() uint16      { return n.id }
func (n *Node) State() State    { return n.state }
func (n *Node) Initiated() bool { return n.state == StateInitiated }
func (n *Node) Disabled() bool  { return n.state == StateDisabled }

// Err is the protocol violation that disabled the node, if any.
func (n *Node) Err() error { return n.err }

// Calibration is only meaningful once the node is initiated.
func (n *Node) Calibration() (mon.Calibration, bool) {
	return n.cal, n.state == StateInitiated
}

// Feed consumes one event. It reports whether the event belongs to the
// steady state and should be forwarded.
func (n *Node) Feed(ev mon.Event) bool {
	switch ev.Kind {
	case mon.KindState:
		return n.feedState(ev)
	case mon.KindInfo:
		return n.feedInfo(ev)
	default:
		n.disable(ev, "unknown event kind")
		return false
	}
}

func (n *Node) feedState(ev mon.Event) bool {
	switch n.state {
	case StateEndian:
		if ev.State == codec.HostToNetworkU16(types.MON_ST_CHECK, mon.BigEndian) {
			n.cal.Order = mon.BigEndian
		} else {
			n.cal.Order = mon.LittleEndian
		}
		n.last = ev.Timestamp
		n.state = StateRecordOffset
	case StateRecordOffset:
		n.cal.RecordOffset = n.last.Diff(ev.Timestamp)
		n.state = StateInfoFetch
	case StateInfoFetch, StateInfoU8Offset, StateInfoU16Offset:
		n.disable(ev, "state event during info calibration")
	case StateInitiated:
		return true
	}
	return false
}

func (n *Node) feedInfo(ev mon.Event) bool {
	switch n.state {
	case StateEndian, StateRecordOffset:
		n.disable(ev, "info event during record calibration")
	case StateInfoFetch:
		n.last = ev.Timestamp
		n.state = StateInfoU8Offset
	case StateInfoU8Offset:
		n.infoOffsetU8 = n.last.Diff(ev.Timestamp)
		n.u8Len = len(ev.Payload)
		n.last = ev.Timestamp
		n.state = StateInfoU16Offset
	case StateInfoU16Offset:
		if len(ev.Payload) == n.u8Len {
			n.disable(ev, "info calibration lengths do not differ")
			return false
		}
		span := len(ev.Payload) - n.u8Len
		if span < 0 {
			span = -span
		}
		// The marginal cost of the extra bytes, spread over each byte. With
		// the usual 1 and 2 byte buffers span is 1.
		infoOffsetU16 := n.last.Diff(ev.Timestamp)
		n.cal.ByteOffset = infoOffsetU16.Diff(n.infoOffsetU8).Div(span)
		n.cal.InfoOffset = n.infoOffsetU8.Diff(n.cal.ByteOffset.Scale(n.u8Len))
		n.last = mon.Timestamp{}
		n.infoOffsetU8 = mon.Timestamp{}
		n.state = StateInitiated

		logutil.GetLogger().Info("node calibrated",
			zap.Uint16("node", n.id),
			zap.Stringer("order", n.cal.Order),
			zap.Int64("record_cycles", n.cal.RecordOffset.Cycles),
			zap.Int64("info_cycles", n.cal.InfoOffset.Cycles),
			zap.Int64("byte_cycles", n.cal.ByteOffset.Cycles))
	case StateInitiated:
		return true
	}
	return false
}

func (n *Node) disable(ev mon.Event, reason string) {
	n.err = fmt.Errorf("%w: node %d in %s: %s", ErrProtocolViolation, n.id, n.state, reason)
	logutil.GetLogger().Warn("calibration failed, node disabled",
		zap.Uint16("node", n.id),
		zap.Stringer("state", n.state),
		zap.Stringer("kind", ev.Kind),
		zap.String("reason", reason))
	n.state = StateDisabled
}
