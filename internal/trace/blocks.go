// Package trace implements the scoped event trace format.
//
// A trace starts with a magic and a version, followed by records. Every
// record is a length prefixed run of blocks: zero or more scopes narrowing
// where the event happened, then exactly one element describing it.
//
//	file   := "MTRC" version:u16 record*
//	record := length:u32 block+
//	block  := kind:u8 length:u16 body
//
// Scope kinds are below 0x80 and readers skip the ones they do not know, so
// new scopes can be added without breaking existing readers. Element kinds
// start at 0x80. The first record of a trace carries a CreateElement with
// the calibration. Envelope integers are big-endian; context, entity and
// state are stored as the firmware delivered them and must be normalized
// with the byte order of the CreateElement.
package trace

import (
	"errors"
	"fmt"

	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
)

const (
	Magic   = "MTRC"
	Version = 1

	// Order is the byte order of the trace envelope.
	Order = mon.BigEndian

	blockHeaderSize  = 3
	recordHeaderSize = 4

	// MaxBlockBody bounds a block body by its u16 length field.
	MaxBlockBody = 0xFFFF
	// MaxPayload is the largest info payload a DataElement can carry.
	MaxPayload = MaxBlockBody - 6
	// MaxRecord bounds the length prefix of a record read back.
	MaxRecord = 16 * (blockHeaderSize + MaxBlockBody)
)

type BlockKind uint8

const (
	KindNodeScope       BlockKind = 0x01
	KindSimulationScope BlockKind = 0x02

	KindCreate BlockKind = 0x80
	KindState  BlockKind = 0x81
	KindData   BlockKind = 0x82
)

func (k BlockKind) IsScope() bool { return k < 0x80 }

func (k BlockKind) String() string {
	switch k {
	case KindNodeScope:
		return "node"
	case KindSimulationScope:
		return "simulation"
	case KindCreate:
		return "create"
	case KindState:
		return "state"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("block(%#02x)", uint8(k))
	}
}

var (
	ErrBadMagic       = errors.New("trace: bad magic")
	ErrBadVersion     = errors.New("trace: unsupported version")
	ErrUnknownElement = errors.New("trace: unknown element kind")
	ErrMalformed      = errors.New("trace: malformed record")
	ErrNoCreate       = errors.New("trace: missing create record")
	ErrPayloadTooLong = errors.New("trace: payload too long")
)

// Block is a self describing part of a record.
type Block interface {
	Kind() BlockKind
	AppendBody(dst []byte) []byte
}

// NodeScope places an event on a node, at the node's own clock.
type NodeScope struct {
	Time   mon.Timestamp
	NodeID uint16
}

func (NodeScope) Kind() BlockKind { return KindNodeScope }

func (s NodeScope) AppendBody(dst []byte) []byte {
	dst = codec.AppendTimestamp(dst, s.Time, Order)
	return codec.AppendU16(dst, s.NodeID, Order)
}

// SimulationScope places an event at a simulation time.
type SimulationScope struct {
	SimTime int64
}

func (SimulationScope) Kind() BlockKind { return KindSimulationScope }

func (s SimulationScope) AppendBody(dst []byte) []byte {
	return codec.AppendI64(dst, s.SimTime, Order)
}

// CreateElement carries the calibration the trace was recorded with.
type CreateElement struct {
	Calibration mon.Calibration
}

func (CreateElement) Kind() BlockKind { return KindCreate }

func (e CreateElement) AppendBody(dst []byte) []byte {
	dst = append(dst, uint8(e.Calibration.Order))
	dst = codec.AppendTimestamp(dst, e.Calibration.RecordOffset, Order)
	dst = codec.AppendTimestamp(dst, e.Calibration.InfoOffset, Order)
	return codec.AppendTimestamp(dst, e.Calibration.ByteOffset, Order)
}

type StateElement struct {
	Context uint16
	Entity  uint16
	State   uint16
}

func (StateElement) Kind() BlockKind { return KindState }

func (e StateElement) AppendBody(dst []byte) []byte {
	dst = codec.AppendU16(dst, e.Context, Order)
	dst = codec.AppendU16(dst, e.Entity, Order)
	return codec.AppendU16(dst, e.State, Order)
}

type DataElement struct {
	Context uint16
	Entity  uint16
	Payload []byte
}

func (DataElement) Kind() BlockKind { return KindData }

func (e DataElement) AppendBody(dst []byte) []byte {
	dst = codec.AppendU16(dst, e.Context, Order)
	dst = codec.AppendU16(dst, e.Entity, Order)
	dst = codec.AppendU16(dst, uint16(len(e.Payload)), Order)
	return append(dst, e.Payload...)
}

// Record is one scoped event.
type Record struct {
	Scopes  []Block
	Element Block
}

// FromEvent wraps a node event in its node and simulation scopes.
func FromEvent(ev mon.Event) Record {
	rec := Record{
		Scopes: []Block{
			NodeScope{Time: ev.Timestamp, NodeID: ev.NodeID},
			SimulationScope{SimTime: ev.SimTime},
		},
	}
	if ev.Kind == mon.KindInfo {
		rec.Element = DataElement{Context: ev.Context, Entity: ev.Entity, Payload: ev.Payload}
	} else {
		rec.Element = StateElement{Context: ev.Context, Entity: ev.Entity, State: ev.State}
	}
	return rec
}

// Event rebuilds the node event held by rec. It reports false for records
// that do not describe a node event, such as the create record.
func (rec Record) Event() (mon.Event, bool) {
	var ev mon.Event
	for _, s := range rec.Scopes {
		switch s := s.(type) {
		case NodeScope:
			ev.Timestamp = s.Time
			ev.NodeID = s.NodeID
		case SimulationScope:
			ev.SimTime = s.SimTime
		}
	}
	switch e := rec.Element.(type) {
	case StateElement:
		ev.Kind = mon.KindState
		ev.Context, ev.Entity, ev.State = e.Context, e.Entity, e.State
	case DataElement:
		ev.Kind = mon.KindInfo
		ev.Context, ev.Entity, ev.Payload = e.Context, e.Entity, e.Payload
	default:
		return mon.Event{}, false
	}
	return ev, true
}

// AppendRecord encodes rec after dst.
func AppendRecord(dst []byte, rec Record) ([]byte, error) {
	if rec.Element == nil || rec.Element.Kind().IsScope() {
		return dst, fmt.Errorf("%w: record needs one element", ErrMalformed)
	}
	if d, ok := rec.Element.(DataElement); ok && len(d.Payload) > MaxPayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(d.Payload))
	}

	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	for _, s := range rec.Scopes {
		if !s.Kind().IsScope() {
			return dst[:start], fmt.Errorf("%w: %s used as scope", ErrMalformed, s.Kind())
		}
		dst = appendBlock(dst, s)
	}
	dst = appendBlock(dst, rec.Element)

	Order.Binary().PutUint32(dst[start:], uint32(len(dst)-start-recordHeaderSize))
	return dst, nil
}

func appendBlock(dst []byte, b Block) []byte {
	start := len(dst)
	dst = append(dst, uint8(b.Kind()), 0, 0)
	dst = b.AppendBody(dst)
	Order.Binary().PutUint16(dst[start+1:], uint16(len(dst)-start-blockHeaderSize))
	return dst
}
