package tap

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.uber.org/zap"
)

// ErrUnknownFlag stops a capture: records are not length prefixed, so
// nothing after an unknown flag can be trusted.
var ErrUnknownFlag = errors.New("unknown capture flag")

// Captures are little-endian streams of flagged records.
var captureOrder = binary.LittleEndian

type attachRecord struct {
	Flag uint8
	Node uint16
}

type memoryRecord struct {
	Flag uint8
	Node uint16
	Addr uint16
	Len  uint16
}

type writeRecord struct {
	Flag    uint8
	Node    uint16
	Addr    uint16
	Data    uint16
	Cycles  int64
	Millis  float64
	SimTime int64
}

// Record is one decoded capture entry. Which fields are set depends on
// Flag.
type Record struct {
	Flag      uint8
	Node      uint16
	Addr      uint16
	Data      uint16
	Bytes     []byte
	Timestamp mon.Timestamp
	SimTime   int64
}

type CaptureLoader struct {
	r       *bufio.Reader
	closer  io.Closer
	err     error
	records int
}

func OpenCapture(path string) (*CaptureLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	cl := NewCaptureLoader(f)
	cl.closer = f
	return cl, nil
}

func NewCaptureLoader(r io.Reader) *CaptureLoader {
	return &CaptureLoader{r: bufio.NewReader(r)}
}

func (cl *CaptureLoader) Close() error {
	if cl.closer != nil {
		return cl.closer.Close()
	}
	return nil
}

// Err reports why Run stopped early. Read it once the channel is closed.
func (cl *CaptureLoader) Err() error { return cl.err }

// Records is the number of records decoded so far.
func (cl *CaptureLoader) Records() int { return cl.records }

// Next decodes one record. It returns io.EOF at a clean end of capture and
// io.ErrUnexpectedEOF when the capture stops inside a record.
func (cl *CaptureLoader) Next() (Record, error) {
	head, err := cl.r.Peek(1)
	if err != nil {
		return Record{}, err
	}

	flag := head[0]
	var rec Record
	switch flag {
	case types.CAPTURE_ATTACH, types.CAPTURE_DETACH:
		var e attachRecord
		if err := binary.Read(cl.r, captureOrder, &e); err != nil {
			return Record{}, truncated(err)
		}
		rec = Record{Flag: e.Flag, Node: e.Node}

	case types.CAPTURE_MEMORY:
		var e memoryRecord
		if err := binary.Read(cl.r, captureOrder, &e); err != nil {
			return Record{}, truncated(err)
		}
		data := make([]byte, e.Len)
		if _, err := io.ReadFull(cl.r, data); err != nil {
			return Record{}, truncated(err)
		}
		rec = Record{Flag: e.Flag, Node: e.Node, Addr: e.Addr, Bytes: data}

	case types.CAPTURE_WRITE:
		var e writeRecord
		if err := binary.Read(cl.r, captureOrder, &e); err != nil {
			return Record{}, truncated(err)
		}
		rec = Record{
			Flag:      e.Flag,
			Node:      e.Node,
			Addr:      e.Addr,
			Data:      e.Data,
			Timestamp: mon.NewTimestamp(e.Cycles, e.Millis),
			SimTime:   e.SimTime,
		}

	default:
		return Record{}, fmt.Errorf("%w 0x%02x after %d records", ErrUnknownFlag, flag, cl.records)
	}

	cl.records++
	return rec, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Run decodes the capture in its own goroutine. The channel is closed at
// the end of the capture, on a decoding error (see Err) or when ctx is
// cancelled.
func (cl *CaptureLoader) Run(ctx context.Context) <-chan Record {
	out := make(chan Record)
	logger := logutil.GetLogger()

	go func() {
		defer close(out)
		for {
			rec, err := cl.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					logger.Info("Capture finished", zap.Int("records", cl.records))
					return
				}
				cl.err = err
				logger.Error("Reading capture", zap.Int("records", cl.records), zap.Error(err))
				return
			}

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, stopping capture loader...")
				return
			case out <- rec:
			}
		}
	}()

	return out
}

// CaptureWriter produces captures CaptureLoader can replay.
type CaptureWriter struct {
	w io.Writer
}

func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{w: w}
}

func (cw *CaptureWriter) Attach(node uint16) error {
	return binary.Write(cw.w, captureOrder, attachRecord{Flag: types.CAPTURE_ATTACH, Node: node})
}

func (cw *CaptureWriter) Detach(node uint16) error {
	return binary.Write(cw.w, captureOrder, attachRecord{Flag: types.CAPTURE_DETACH, Node: node})
}

func (cw *CaptureWriter) Memory(node, addr uint16, data []byte) error {
	if len(data) > 0xFFFF {
		return fmt.Errorf("%w: %d bytes", ErrMemory, len(data))
	}
	head := memoryRecord{Flag: types.CAPTURE_MEMORY, Node: node, Addr: addr, Len: uint16(len(data))}
	if err := binary.Write(cw.w, captureOrder, head); err != nil {
		return err
	}
	_, err := cw.w.Write(data)
	return err
}

func (cw *CaptureWriter) Write(node, addr, data uint16, ts mon.Timestamp, simTime int64) error {
	return binary.Write(cw.w, captureOrder, writeRecord{
		Flag:    types.CAPTURE_WRITE,
		Node:    node,
		Addr:    addr,
		Data:    data,
		Cycles:  ts.Cycles,
		Millis:  ts.Millis,
		SimTime: simTime,
	})
}
