package tap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	kind    mon.Kind
	ctx     uint16
	ent     uint16
	state   uint16
	payload []byte
	ts      mon.Timestamp
	simTime int64
	node    uint16
}

type fakeHost struct {
	events  []recorded
	added   []int
	removed []uint16
	reject  map[int]bool
	failOn  int
}

func (h *fakeHost) OnState(ctx, ent, state uint16, ts mon.Timestamp, simTime int64, node uint16) error {
	h.events = append(h.events, recorded{mon.KindState, ctx, ent, state, nil, ts, simTime, node})
	if h.failOn > 0 && len(h.events) == h.failOn {
		return errors.New("sink gone")
	}
	return nil
}

func (h *fakeHost) OnInfo(ctx, ent uint16, payload []byte, ts mon.Timestamp, simTime int64, node uint16) error {
	h.events = append(h.events, recorded{mon.KindInfo, ctx, ent, 0, payload, ts, simTime, node})
	return nil
}

func (h *fakeHost) AddNode(id int) error {
	if h.reject[id] {
		return errors.New("rejected")
	}
	h.added = append(h.added, id)
	return nil
}

func (h *fakeHost) RemoveNode(id uint16) { h.removed = append(h.removed, id) }

func TestTapRecordsState(t *testing.T) {
	h := &fakeHost{}
	tp := New(4, FixedLayout, nil, h)
	ts := mon.NewTimestamp(500, 0.5)

	require.NoError(t, tp.Write(types.REG_CTX, 1, ts, 0))
	require.NoError(t, tp.Write(types.REG_ENT, 2, ts, 0))
	require.NoError(t, tp.Write(types.REG_STI, 3, ts, 0))
	assert.Empty(t, h.events, "registers alone emit nothing")

	require.NoError(t, tp.Write(types.REG_CTL, types.CTL_RECORD, ts, 1234))
	require.Len(t, h.events, 1)
	assert.Equal(t, recorded{mon.KindState, 1, 2, 3, nil, ts, 1234, 4}, h.events[0])

	// Without the record bit, ctl only latches the length.
	require.NoError(t, tp.Write(types.REG_CTL, types.CTL_INFO_MODE|4, ts, 0))
	assert.Len(t, h.events, 1)
}

func TestTapRecordsInfoFromMemory(t *testing.T) {
	h := &fakeHost{}
	ram := NewRAM()
	require.NoError(t, ram.Store(0x2000, []byte{0xde, 0xad, 0xbe, 0xef}))
	tp := New(1, FixedLayout, ram, h)

	require.NoError(t, tp.Write(types.REG_STI, 0x2001, mon.Timestamp{}, 0))
	require.NoError(t, tp.Write(types.REG_CTL, types.CTL_RECORD|types.CTL_INFO_MODE|2, mon.Timestamp{}, 0))

	require.Len(t, h.events, 1)
	assert.Equal(t, mon.KindInfo, h.events[0].kind)
	assert.Equal(t, []byte{0xad, 0xbe}, h.events[0].payload)
}

func TestTapInfoOutsideMemory(t *testing.T) {
	h := &fakeHost{}
	tp := New(1, FixedLayout, NewRAM(), h)

	require.NoError(t, tp.Write(types.REG_STI, 0xFFFF, mon.Timestamp{}, 0))
	err := tp.Write(types.REG_CTL, types.CTL_RECORD|types.CTL_INFO_MODE|8, mon.Timestamp{}, 0)
	assert.ErrorIs(t, err, ErrMemory)
	assert.Empty(t, h.events)

	// An empty info never touches memory.
	noMem := New(2, FixedLayout, nil, h)
	require.NoError(t, noMem.Write(types.REG_CTL, types.CTL_RECORD|types.CTL_INFO_MODE, mon.Timestamp{}, 0))
	require.Len(t, h.events, 1)
	assert.Empty(t, h.events[0].payload)
}

func TestResolveLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	doc := "memmon_reg_ctx: 0x2100\nmemmon_reg_ent: 0x2102\nmemmon_reg_sti: 0x2104\nmemmon_reg_ctl: 0x2106\nmain: 0x4400\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	syms, err := LoadSymbols(path)
	require.NoError(t, err)
	l, err := ResolveLayout(syms)
	require.NoError(t, err)
	assert.Equal(t, Layout{Ctx: 0x2100, Ent: 0x2102, Sti: 0x2104, Ctl: 0x2106}, l)

	tp := New(0, l, nil, &fakeHost{})
	assert.True(t, tp.Watches(0x2106))
	assert.False(t, tp.Watches(types.REG_CTL))

	delete(syms, types.SYM_STI)
	_, err = ResolveLayout(syms)
	assert.ErrorIs(t, err, ErrMissingSymbol)
	assert.Contains(t, err.Error(), types.SYM_STI)
}

func writeCapture(t *testing.T, fn func(cw *CaptureWriter)) []byte {
	t.Helper()
	var buf bytes.Buffer
	fn(NewCaptureWriter(&buf))
	return buf.Bytes()
}

func TestCaptureRoundTrip(t *testing.T) {
	ts := mon.NewTimestamp(77, 0.077)
	data := writeCapture(t, func(cw *CaptureWriter) {
		require.NoError(t, cw.Attach(3))
		require.NoError(t, cw.Memory(3, 0x300, []byte{9, 8, 7}))
		require.NoError(t, cw.Write(3, types.REG_CTL, types.CTL_RECORD, ts, 42))
		require.NoError(t, cw.Detach(3))
	})

	cl := NewCaptureLoader(bytes.NewReader(data))
	var got []Record
	for {
		rec, err := cl.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}

	assert.Equal(t, []Record{
		{Flag: types.CAPTURE_ATTACH, Node: 3},
		{Flag: types.CAPTURE_MEMORY, Node: 3, Addr: 0x300, Bytes: []byte{9, 8, 7}},
		{Flag: types.CAPTURE_WRITE, Node: 3, Addr: types.REG_CTL, Data: types.CTL_RECORD, Timestamp: ts, SimTime: 42},
		{Flag: types.CAPTURE_DETACH, Node: 3},
	}, got)
	assert.Equal(t, 4, cl.Records())
}

func TestCaptureErrors(t *testing.T) {
	data := writeCapture(t, func(cw *CaptureWriter) {
		require.NoError(t, cw.Write(1, types.REG_CTX, 5, mon.Timestamp{}, 0))
	})
	_, err := NewCaptureLoader(bytes.NewReader(data[:len(data)-3])).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewCaptureLoader(bytes.NewReader([]byte{0x7f, 0, 0})).Next()
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestCaptureRun(t *testing.T) {
	data := writeCapture(t, func(cw *CaptureWriter) {
		require.NoError(t, cw.Attach(1))
		require.NoError(t, cw.Attach(2))
	})
	data = append(data, 0xee)

	cl := NewCaptureLoader(bytes.NewReader(data))
	var got []uint16
	for rec := range cl.Run(context.Background()) {
		got = append(got, rec.Node)
	}
	assert.Equal(t, []uint16{1, 2}, got)
	assert.ErrorIs(t, cl.Err(), ErrUnknownFlag)
}

func TestOpenCapture(t *testing.T) {
	_, err := OpenCapture(filepath.Join(t.TempDir(), "none.cap"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "run.cap")
	require.NoError(t, os.WriteFile(path, writeCapture(t, func(cw *CaptureWriter) {
		require.NoError(t, cw.Attach(9))
	}), 0o644))
	cl, err := OpenCapture(path)
	require.NoError(t, err)
	rec, err := cl.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(9), rec.Node)
	require.NoError(t, cl.Close())
}

func TestReplayer(t *testing.T) {
	ts := mon.NewTimestamp(10, 0.01)
	data := writeCapture(t, func(cw *CaptureWriter) {
		require.NoError(t, cw.Attach(1))
		require.NoError(t, cw.Attach(40000))
		require.NoError(t, cw.Memory(1, 0x200, []byte{0xca, 0xfe}))
		require.NoError(t, cw.Write(1, types.REG_STI, 0x200, ts, 0))
		require.NoError(t, cw.Write(1, types.REG_CTL, types.CTL_RECORD|types.CTL_INFO_MODE|2, ts, 5))
		// Bad pointer: dropped, replay continues.
		require.NoError(t, cw.Write(1, types.REG_STI, 0xFFFE, ts, 0))
		require.NoError(t, cw.Write(1, types.REG_CTL, types.CTL_RECORD|types.CTL_INFO_MODE|4, ts, 6))
		// Rejected node: ignored.
		require.NoError(t, cw.Write(40000, types.REG_CTL, types.CTL_RECORD, ts, 7))
		require.NoError(t, cw.Detach(1))
		require.NoError(t, cw.Write(1, types.REG_CTL, types.CTL_RECORD, ts, 8))
	})

	h := &fakeHost{reject: map[int]bool{40000: true}}
	r := NewReplayer(h, FixedLayout)
	cl := NewCaptureLoader(bytes.NewReader(data))
	require.NoError(t, r.Run(context.Background(), cl.Run(context.Background())))
	require.NoError(t, cl.Err())

	assert.Equal(t, []int{1}, h.added)
	assert.Equal(t, []uint16{1}, h.removed)
	require.Len(t, h.events, 1)
	assert.Equal(t, []byte{0xca, 0xfe}, h.events[0].payload)
	assert.Equal(t, int64(5), h.events[0].simTime)
	assert.Equal(t, 0, r.Attached())
}

func TestReplayerStopsOnHostError(t *testing.T) {
	h := &fakeHost{failOn: 1}
	r := NewReplayer(h, FixedLayout)
	require.NoError(t, r.Apply(Record{Flag: types.CAPTURE_ATTACH, Node: 1}))

	err := r.Apply(Record{Flag: types.CAPTURE_WRITE, Node: 1, Addr: types.REG_CTL, Data: types.CTL_RECORD})
	assert.EqualError(t, err, "sink gone")
}

func TestReplayerHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReplayer(&fakeHost{}, FixedLayout)
	err := r.Run(ctx, make(chan Record))
	assert.ErrorIs(t, err, context.Canceled)
}
