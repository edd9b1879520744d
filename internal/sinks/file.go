package sinks

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	fileHeaderSize = 4 + 4 + 3*mon.TimestampSize
	fileRecordSize = mon.TimestampSize + 8 + 4*2

	controlLittleEndian = 1
)

var ErrBadFileMagic = errors.New("file sink: bad magic")

// FileSink writes the flat record format:
//
//	header: magic:i32 control:i32 recordOffset infoOffset byteOffset
//	record: timestamp simTime:i64 nodeID context entity tag [payload]
//
// magic and control are big-endian, everything else uses the firmware byte
// order. A tag of 0xFFFF announces an info record whose payload follows;
// any other tag is the state value.
type FileSink struct {
	path  string
	f     *os.File
	w     *bufio.Writer
	order mon.ByteOrder
	buf   []byte
}

func NewFileSink(path string, cal mon.Calibration) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%s sink: cannot open %q for writing: %w", types.SinkFile, path, err)
	}
	s := &FileSink{path: path, f: f, w: bufio.NewWriter(f), order: cal.Order}

	hdr := make([]byte, 0, fileHeaderSize)
	hdr = codec.AppendI32(hdr, types.MON_FILE_MAGIC, mon.BigEndian)
	var control int32
	if cal.Order == mon.LittleEndian {
		control |= controlLittleEndian
	}
	hdr = codec.AppendI32(hdr, control, mon.BigEndian)
	hdr = codec.AppendTimestamp(hdr, cal.RecordOffset, cal.Order)
	hdr = codec.AppendTimestamp(hdr, cal.InfoOffset, cal.Order)
	hdr = codec.AppendTimestamp(hdr, cal.ByteOffset, cal.Order)
	if _, err := s.w.Write(hdr); err != nil {
		return nil, multierr.Append(fmt.Errorf("%s sink: write header: %w", types.SinkFile, err), f.Close())
	}

	logutil.GetLogger().Info("file sink created", zap.String("path", path), zap.Stringer("order", cal.Order))
	return s, nil
}

func (s *FileSink) Record(ev mon.CalibratedEvent) error {
	b := s.buf[:0]
	b = codec.AppendTimestamp(b, ev.Timestamp, s.order)
	b = codec.AppendI64(b, ev.SimTime, s.order)
	b = codec.AppendU16(b, ev.NodeID, s.order)
	b = codec.AppendU16(b, ev.Context, s.order)
	b = codec.AppendU16(b, ev.Entity, s.order)
	if ev.Kind == mon.KindInfo {
		b = codec.AppendU16(b, types.MON_INFO_TAG, s.order)
		b = append(b, ev.Payload...)
	} else {
		b = codec.AppendU16(b, ev.State, s.order)
	}
	s.buf = b

	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("%s sink: write error: %w", types.SinkFile, err)
	}
	return nil
}

// Finish flushes pending records and closes the file. The file is closed
// even when the flush fails.
func (s *FileSink) Finish() error {
	err := multierr.Combine(s.w.Flush(), s.f.Close())
	if err != nil {
		return fmt.Errorf("%s sink: close error: %w", types.SinkFile, err)
	}
	logutil.GetLogger().Info("file sink closed", zap.String("path", s.path))
	return nil
}

// FileReader parses the output of FileSink. The format does not store info
// payload lengths, so the caller supplies them through infoLen.
type FileReader struct {
	r       *bufio.Reader
	cal     mon.Calibration
	infoLen func(ev mon.Event) int
}

func NewFileReader(r io.Reader, infoLen func(ev mon.Event) int) (*FileReader, error) {
	br := bufio.NewReader(r)
	hdr := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("read file header: %w", err)
	}

	cr := codec.NewReader(hdr[:8], mon.BigEndian)
	if cr.I32() != types.MON_FILE_MAGIC {
		return nil, ErrBadFileMagic
	}
	var cal mon.Calibration
	if cr.I32()&controlLittleEndian != 0 {
		cal.Order = mon.LittleEndian
	}
	tr := codec.NewReader(hdr[8:], cal.Order)
	cal.RecordOffset = tr.Timestamp()
	cal.InfoOffset = tr.Timestamp()
	cal.ByteOffset = tr.Timestamp()

	return &FileReader{r: br, cal: cal, infoLen: infoLen}, nil
}

func (fr *FileReader) Calibration() mon.Calibration { return fr.cal }

// Next returns io.EOF at a clean end of file.
func (fr *FileReader) Next() (mon.Event, error) {
	rec := make([]byte, fileRecordSize)
	if _, err := io.ReadFull(fr.r, rec); err != nil {
		return mon.Event{}, err
	}
	r := codec.NewReader(rec, fr.cal.Order)
	ev := mon.Event{
		Timestamp: r.Timestamp(),
		SimTime:   r.I64(),
		NodeID:    r.U16(),
		Context:   r.U16(),
		Entity:    r.U16(),
	}
	tag := r.U16()
	if tag != types.MON_INFO_TAG {
		ev.Kind = mon.KindState
		ev.State = tag
		return ev, nil
	}

	ev.Kind = mon.KindInfo
	n := 0
	if fr.infoLen != nil {
		n = fr.infoLen(ev)
	}
	ev.Payload = make([]byte, n)
	if _, err := io.ReadFull(fr.r, ev.Payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return mon.Event{}, err
	}
	return ev, nil
}
