package codec

import (
	"io"
	"math"

	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
)

// Reader decodes consecutive fixed-width fields from a byte slice. The
// first short read sticks in Err and every later call returns zero.
type Reader struct {
	buf   []byte
	off   int
	order mon.ByteOrder
	Err   error
}

func NewReader(buf []byte, o mon.ByteOrder) *Reader {
	return &Reader{buf: buf, order: o}
}

func (r *Reader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.Err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Len() int { return len(r.buf) - r.off }

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return r.order.Binary().Uint16(b)
}

func (r *Reader) I32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(r.order.Binary().Uint32(b))
}

func (r *Reader) I64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(r.order.Binary().Uint64(b))
}

func (r *Reader) F64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(r.order.Binary().Uint64(b))
}

func (r *Reader) Timestamp() mon.Timestamp {
	c := r.I64()
	ms := r.F64()
	return mon.Timestamp{Cycles: c, Millis: ms}
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func DecodeU16(b []byte, o mon.ByteOrder) (uint16, error) {
	r := NewReader(b, o)
	v := r.U16()
	return v, r.Err
}

func DecodeI32(b []byte, o mon.ByteOrder) (int32, error) {
	r := NewReader(b, o)
	v := r.I32()
	return v, r.Err
}

func DecodeI64(b []byte, o mon.ByteOrder) (int64, error) {
	r := NewReader(b, o)
	v := r.I64()
	return v, r.Err
}

func DecodeF64(b []byte, o mon.ByteOrder) (float64, error) {
	r := NewReader(b, o)
	v := r.F64()
	return v, r.Err
}

func DecodeTimestamp(b []byte, o mon.ByteOrder) (mon.Timestamp, error) {
	r := NewReader(b, o)
	ts := r.Timestamp()
	return ts, r.Err
}
