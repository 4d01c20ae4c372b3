// Package wire encodes and decodes frames of the Knot DNS control protocol.
//
// Every unit on the wire starts with one code byte. Codes 0 to 3 open a new
// frame of the matching domain.FrameType. Codes DataCodeOffset+i carry the
// value of field index i as a big endian uint16 length followed by the raw
// bytes. A frame ends where the next frame type code begins; END and BLOCK
// frames never carry items.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/haukened/knot-exporter/internal/knot/domain"
)

// DataCodeOffset is added to a domain.FieldIndex to form its item code.
const DataCodeOffset = 0x10

var (
	ErrUnknownCode       = fmt.Errorf("%w: unknown unit code", domain.ErrProtocol)
	ErrOrphanItem        = fmt.Errorf("%w: data item outside a frame", domain.ErrProtocol)
	ErrPayloadNotAllowed = errors.New("frame type cannot carry fields")
	ErrFieldTooLong      = errors.New("field value exceeds 65535 bytes")
	ErrInvalidFrameType  = errors.New("invalid frame type")
)

func isTypeCode(code byte) bool {
	return domain.FrameType(code).IsValid()
}

func isItemCode(code byte) bool {
	return code >= DataCodeOffset && domain.FieldIndex(code-DataCodeOffset).IsValid()
}

// AppendFrame appends the wire form of rec to dst.
func AppendFrame(dst []byte, rec domain.ControlRecord) ([]byte, error) {
	if !rec.Type.IsValid() {
		return dst, fmt.Errorf("%w: %s", ErrInvalidFrameType, rec.Type)
	}
	fields := rec.Fields()
	if len(fields) > 0 && !rec.Type.HasPayload() {
		return dst, fmt.Errorf("%w: %s", ErrPayloadNotAllowed, rec.Type)
	}

	dst = append(dst, byte(rec.Type))
	for _, f := range fields {
		if len(f.Value) > math.MaxUint16 {
			return dst, fmt.Errorf("%w: %s", ErrFieldTooLong, f.Index)
		}
		dst = append(dst, DataCodeOffset+byte(f.Index))
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Value)))
		dst = append(dst, f.Value...)
	}
	return dst, nil
}

// Encoder buffers outgoing frames. END and BLOCK frames flush the buffer,
// since they are the points where the peer starts acting on what it received.
type Encoder struct {
	w   *bufio.Writer
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes rec, flushing when rec terminates a block or the session.
func (e *Encoder) Encode(rec domain.ControlRecord) error {
	var err error
	e.buf, err = AppendFrame(e.buf[:0], rec)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(e.buf); err != nil {
		return err
	}
	if rec.Type == domain.FrameBlock || rec.Type == domain.FrameEnd {
		return e.w.Flush()
	}
	return nil
}

// Flush writes any buffered frames.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Decoder reads frames from a byte stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next frame. It returns io.EOF when the stream ends cleanly
// between frames, and io.ErrUnexpectedEOF when it ends inside an item.
// Malformed input yields an error wrapping domain.ErrProtocol.
func (d *Decoder) Decode() (domain.ControlRecord, error) {
	code, err := d.r.ReadByte()
	if err != nil {
		return domain.ControlRecord{}, err
	}
	switch {
	case isTypeCode(code):
	case isItemCode(code):
		return domain.ControlRecord{}, fmt.Errorf("%w: %s", ErrOrphanItem, domain.FieldIndex(code-DataCodeOffset))
	default:
		return domain.ControlRecord{}, fmt.Errorf("%w: 0x%02x", ErrUnknownCode, code)
	}

	ft := domain.FrameType(code)
	if !ft.HasPayload() {
		return domain.NewControlRecord(ft), nil
	}

	var fields []domain.Field
	for {
		code, err := d.r.ReadByte()
		if err == io.EOF {
			// The stream may end right after a complete frame.
			break
		}
		if err != nil {
			return domain.ControlRecord{}, err
		}
		if isTypeCode(code) {
			if err := d.r.UnreadByte(); err != nil {
				return domain.ControlRecord{}, err
			}
			break
		}
		if !isItemCode(code) {
			return domain.ControlRecord{}, fmt.Errorf("%w: 0x%02x in %s frame", ErrUnknownCode, code, ft)
		}

		value, err := d.readItem()
		if err != nil {
			return domain.ControlRecord{}, err
		}
		fields = append(fields, domain.Field{Index: domain.FieldIndex(code - DataCodeOffset), Value: value})
	}
	return domain.NewControlRecord(ft, fields...), nil
}

func (d *Decoder) readItem() (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return "", truncated(err)
	}
	data := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(d.r, data); err != nil {
		return "", truncated(err)
	}
	return string(data), nil
}

func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
