// Package codec encodes the fixed-width scalars used by the monitor sinks
// under an explicit byte order.
package codec

import (
	"math"

	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"golang.org/x/sys/cpu"
)

// Native is the byte order of the host running the monitor.
func Native() mon.ByteOrder {
	if cpu.IsBigEndian {
		return mon.BigEndian
	}
	return mon.LittleEndian
}

func Swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

// NetworkToHostU16 converts v from the wire order to the host order.
func NetworkToHostU16(v uint16, wire mon.ByteOrder) uint16 {
	if wire == Native() {
		return v
	}
	return Swap16(v)
}

// HostToNetworkU16 converts v from the host order to the wire order.
func HostToNetworkU16(v uint16, wire mon.ByteOrder) uint16 {
	return NetworkToHostU16(v, wire)
}

// HostFields returns context, entity and state of ev in host order.
func HostFields(ev mon.CalibratedEvent) (context, entity, state uint16) {
	o := ev.Calibration.Order
	return NetworkToHostU16(ev.Context, o), NetworkToHostU16(ev.Entity, o), NetworkToHostU16(ev.State, o)
}

func AppendU16(dst []byte, v uint16, o mon.ByteOrder) []byte {
	return o.Binary().AppendUint16(dst, v)
}

func AppendI32(dst []byte, v int32, o mon.ByteOrder) []byte {
	return o.Binary().AppendUint32(dst, uint32(v))
}

func AppendI64(dst []byte, v int64, o mon.ByteOrder) []byte {
	return o.Binary().AppendUint64(dst, uint64(v))
}

func AppendF64(dst []byte, v float64, o mon.ByteOrder) []byte {
	return o.Binary().AppendUint64(dst, math.Float64bits(v))
}

// AppendTimestamp writes cycles then millis.
func AppendTimestamp(dst []byte, ts mon.Timestamp, o mon.ByteOrder) []byte {
	dst = AppendI64(dst, ts.Cycles, o)
	return AppendF64(dst, ts.Millis, o)
}

func EncodeU16(v uint16, o mon.ByteOrder) []byte { return AppendU16(make([]byte, 0, 2), v, o) }
func EncodeI32(v int32, o mon.ByteOrder) []byte  { return AppendI32(make([]byte, 0, 4), v, o) }
func EncodeI64(v int64, o mon.ByteOrder) []byte  { return AppendI64(make([]byte, 0, 8), v, o) }
func EncodeF64(v float64, o mon.ByteOrder) []byte {
	return AppendF64(make([]byte, 0, 8), v, o)
}

func EncodeTimestamp(ts mon.Timestamp, o mon.ByteOrder) []byte {
	return AppendTimestamp(make([]byte, 0, mon.TimestampSize), ts, o)
}
