package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encodable is implemented by every value that travels on the wire.
// Encodings are canonical: equal values always produce equal bytes.
type Encodable interface {
	Encode(w *Writer) error
}

// Writer appends big-endian fields to a byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// WriteFixed writes b without a length prefix.
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBytes writes b with a 16-bit length prefix.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("field of %d bytes exceeds %d", len(b), math.MaxUint16)
	}
	w.WriteUint16(uint16(len(b)))
	w.WriteFixed(b)
	return nil
}

// WriteString writes s with a 16-bit length prefix.
func (w *Writer) WriteString(s string) error {
	return w.WriteBytes([]byte(s))
}

// Encode runs v.Encode on a fresh writer and returns the bytes.
func Encode(v Encodable) ([]byte, error) {
	w := NewWriter()
	if err := v.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Reader consumes big-endian fields. All read errors are MalformedPacket errors.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a reader over b. The reader does not copy b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Done returns an error if unread bytes remain.
func (r *Reader) Done() error {
	if r.Remaining() != 0 {
		return errMalformed(fmt.Sprintf("%d trailing bytes", r.Remaining()))
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errMalformed(fmt.Sprintf("truncated: need %d bytes, have %d", n, r.Remaining()))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadFixed reads exactly n bytes into dst.
func (r *Reader) ReadFixed(dst []byte) error {
	b, err := r.take(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// ReadBytes reads a 16-bit length-prefixed byte field into a fresh slice. An
// empty field yields an empty, non-nil slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append(make([]byte, 0, n), b...), nil
}

// ReadString reads a 16-bit length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// consumed returns the bytes read since offset start.
func (r *Reader) consumed(start int) []byte {
	return r.buf[start:r.off]
}
