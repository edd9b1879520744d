package tap

import (
	"fmt"
	"io"
)

// MemorySize covers a 16-bit address space.
const MemorySize = 1 << 16

// RAM is the byte addressable memory of a node.
type RAM []byte

func NewRAM() RAM { return make(RAM, MemorySize) }

func (m RAM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m)) {
		return 0, io.EOF
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m RAM) Store(addr uint16, data []byte) error {
	if int(addr)+len(data) > len(m) {
		return fmt.Errorf("%w: %d bytes at 0x%04x", ErrMemory, len(data), addr)
	}
	copy(m[addr:], data)
	return nil
}
