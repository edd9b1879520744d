// Package tap turns writes to the monitor registers of a node into monitor
// events. Firmware drives four 16-bit registers:
//
//	ctx  context of the event
//	ent  entity of the event
//	sti  state, or the address of the info payload
//	ctl  bit 9 info mode, bit 8 record, bits 7-0 info length
//
// Writing ctl with the record bit set emits the event.
package tap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingSymbol = errors.New("monitor symbol not found")
	ErrMemory        = errors.New("info payload outside node memory")
)

// Layout holds the addresses of the four registers.
type Layout struct {
	Ctx uint16
	Ent uint16
	Sti uint16
	Ctl uint16
}

var FixedLayout = Layout{
	Ctx: types.REG_CTX,
	Ent: types.REG_ENT,
	Sti: types.REG_STI,
	Ctl: types.REG_CTL,
}

// ResolveLayout finds the register block in a firmware symbol table.
func ResolveLayout(symbols map[string]uint16) (Layout, error) {
	var l Layout
	var missing []string
	for _, s := range []struct {
		name string
		dst  *uint16
	}{
		{types.SYM_CTX, &l.Ctx},
		{types.SYM_ENT, &l.Ent},
		{types.SYM_STI, &l.Sti},
		{types.SYM_CTL, &l.Ctl},
	} {
		addr, ok := symbols[s.name]
		if !ok {
			missing = append(missing, s.name)
			continue
		}
		*s.dst = addr
	}
	if len(missing) > 0 {
		return Layout{}, fmt.Errorf("%w: %s", ErrMissingSymbol, strings.Join(missing, ", "))
	}
	return l, nil
}

// LoadSymbols reads a YAML mapping of symbol names to addresses.
func LoadSymbols(path string) (map[string]uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	symbols := map[string]uint16{}
	if err := yaml.Unmarshal(data, &symbols); err != nil {
		return nil, fmt.Errorf("parse symbols %s: %w", path, err)
	}
	return symbols, nil
}

// Recorder receives the events a tap decodes.
type Recorder interface {
	OnState(context, entity, state uint16, ts mon.Timestamp, simTime int64, node uint16) error
	OnInfo(context, entity uint16, payload []byte, ts mon.Timestamp, simTime int64, node uint16) error
}

// Tap watches the register block of one node.
type Tap struct {
	layout Layout
	node   uint16
	mem    io.ReaderAt
	rec    Recorder

	ctx uint16
	ent uint16
	sti uint16
}

func New(node uint16, layout Layout, mem io.ReaderAt, rec Recorder) *Tap {
	return &Tap{
		layout: layout,
		node:   node,
		mem:    mem,
		rec:    rec,
	}
}

func (t *Tap) Node() uint16 { return t.node }

func (t *Tap) Watches(addr uint16) bool {
	switch addr {
	case t.layout.Ctx, t.layout.Ent, t.layout.Sti, t.layout.Ctl:
		return true
	}
	return false
}

// Write handles a register write observed at ts. Writes outside the
// register block are ignored.
func (t *Tap) Write(addr, data uint16, ts mon.Timestamp, simTime int64) error {
	switch addr {
	case t.layout.Ctx:
		t.ctx = data
	case t.layout.Ent:
		t.ent = data
	case t.layout.Sti:
		t.sti = data
	case t.layout.Ctl:
		if data&types.CTL_RECORD == 0 {
			return nil
		}
		if data&types.CTL_INFO_MODE != 0 {
			return t.recordInfo(int(data&types.CTL_INFO_LEN_MASK), ts, simTime)
		}
		return t.rec.OnState(t.ctx, t.ent, t.sti, ts, simTime, t.node)
	}
	return nil
}

func (t *Tap) recordInfo(n int, ts mon.Timestamp, simTime int64) error {
	payload := make([]byte, n)
	if n > 0 {
		if t.mem == nil {
			return fmt.Errorf("%w: node %d has no memory", ErrMemory, t.node)
		}
		if read, err := t.mem.ReadAt(payload, int64(t.sti)); read != n {
			return fmt.Errorf("%w: node %d %d bytes at 0x%04x: %v", ErrMemory, t.node, n, t.sti, err)
		}
	}
	return t.rec.OnInfo(t.ctx, t.ent, payload, ts, simTime, t.node)
}
