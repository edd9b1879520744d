package mon

import "encoding/binary"

// ByteOrder is the byte order negotiated with a node firmware.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// Order decodes and appends fixed-width integers.
type Order interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (o ByteOrder) Binary() Order {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "LE"
	}
	return "BE"
}
