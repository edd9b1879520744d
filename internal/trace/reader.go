package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
)

// Reader decodes a trace written by Writer.
type Reader struct {
	r       *bufio.Reader
	cal     mon.Calibration
	skipped int
}

// NewReader checks the header and decodes the create record.
func NewReader(r io.Reader) (*Reader, error) {
	tr := &Reader{r: bufio.NewReader(r)}

	hdr := make([]byte, len(Magic)+2)
	if _, err := io.ReadFull(tr.r, hdr); err != nil {
		return nil, fmt.Errorf("read trace header: %w", err)
	}
	if string(hdr[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}
	if v, _ := codec.DecodeU16(hdr[len(Magic):], Order); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	rec, err := tr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoCreate
		}
		return nil, err
	}
	create, ok := rec.Element.(CreateElement)
	if !ok {
		return nil, fmt.Errorf("%w: first element is %s", ErrNoCreate, rec.Element.Kind())
	}
	tr.cal = create.Calibration
	return tr, nil
}

// Calibration is the calibration stored in the create record.
func (tr *Reader) Calibration() mon.Calibration { return tr.cal }

// Skipped counts scope blocks of unknown kind that were ignored.
func (tr *Reader) Skipped() int { return tr.skipped }

// Next returns the next record, io.EOF at a clean end of trace and
// io.ErrUnexpectedEOF when the trace stops inside a record.
func (tr *Reader) Next() (Record, error) {
	var lenBuf [recordHeaderSize]byte
	if _, err := io.ReadFull(tr.r, lenBuf[:]); err != nil {
		return Record{}, err
	}
	n := Order.Binary().Uint32(lenBuf[:])
	if n > MaxRecord {
		return Record{}, fmt.Errorf("%w: record length %d", ErrMalformed, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(tr.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	return tr.decodeRecord(body)
}

// Event returns the next node event, skipping records without one.
func (tr *Reader) Event() (mon.Event, error) {
	for {
		rec, err := tr.Next()
		if err != nil {
			return mon.Event{}, err
		}
		if ev, ok := rec.Event(); ok {
			return ev, nil
		}
	}
}

func (tr *Reader) decodeRecord(body []byte) (Record, error) {
	var rec Record
	for len(body) > 0 {
		if rec.Element != nil {
			return Record{}, fmt.Errorf("%w: data after element", ErrMalformed)
		}
		if len(body) < blockHeaderSize {
			return Record{}, fmt.Errorf("%w: truncated block header", ErrMalformed)
		}
		kind := BlockKind(body[0])
		n := int(Order.Binary().Uint16(body[1:3]))
		if len(body)-blockHeaderSize < n {
			return Record{}, fmt.Errorf("%w: truncated %s block", ErrMalformed, kind)
		}
		blk := body[blockHeaderSize : blockHeaderSize+n]
		body = body[blockHeaderSize+n:]

		if kind.IsScope() {
			s, ok, err := decodeScope(kind, blk)
			if err != nil {
				return Record{}, err
			}
			if !ok {
				tr.skipped++
				continue
			}
			rec.Scopes = append(rec.Scopes, s)
			continue
		}

		e, err := decodeElement(kind, blk)
		if err != nil {
			return Record{}, err
		}
		rec.Element = e
	}
	if rec.Element == nil {
		return Record{}, fmt.Errorf("%w: record without element", ErrMalformed)
	}
	return rec, nil
}

func decodeScope(kind BlockKind, b []byte) (Block, bool, error) {
	r := codec.NewReader(b, Order)
	var s Block
	switch kind {
	case KindNodeScope:
		s = NodeScope{Time: r.Timestamp(), NodeID: r.U16()}
	case KindSimulationScope:
		s = SimulationScope{SimTime: r.I64()}
	default:
		return nil, false, nil
	}
	if r.Err != nil {
		return nil, false, fmt.Errorf("%w: %s scope: %v", ErrMalformed, kind, r.Err)
	}
	return s, true, nil
}

func decodeElement(kind BlockKind, b []byte) (Block, error) {
	r := codec.NewReader(b, Order)
	var e Block
	switch kind {
	case KindCreate:
		var cal mon.Calibration
		cal.Order = mon.ByteOrder(r.U8())
		cal.RecordOffset = r.Timestamp()
		cal.InfoOffset = r.Timestamp()
		cal.ByteOffset = r.Timestamp()
		if cal.Order != mon.BigEndian && cal.Order != mon.LittleEndian {
			return nil, fmt.Errorf("%w: byte order %d", ErrMalformed, cal.Order)
		}
		e = CreateElement{Calibration: cal}
	case KindState:
		e = StateElement{Context: r.U16(), Entity: r.U16(), State: r.U16()}
	case KindData:
		d := DataElement{Context: r.U16(), Entity: r.U16()}
		n := int(r.U16())
		d.Payload = r.Bytes(n)
		e = d
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, kind)
	}
	if r.Err != nil {
		return nil, fmt.Errorf("%w: %s element: %v", ErrMalformed, kind, r.Err)
	}
	return e, nil
}
