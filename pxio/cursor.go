package pxio

import (
	"encoding/binary"

	"github.com/kpfaulkner/pixmap-go/imgerr"
)

const (
	VarintBits = 7
	VarintMask = 0x7F
	VarintMore = 0x80

	// a uint32 never needs more than five 7-bit groups
	maxVarintBytes = 5
)

// Cursor reads little-endian values from a byte slice. Every read is bounds
// checked against the remaining bytes and a short read is Malformed.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) Len() int {
	return len(c.buf)
}

func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

func (c *Cursor) need(n int, what string) error {
	if n < 0 || n > c.Remaining() {
		return imgerr.New(imgerr.Malformed, "cursor", "reading %s: need %d bytes at offset %d, %d remain", what, n, c.off, c.Remaining())
	}
	return nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1, "u8"); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.need(2, "u16"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.need(4, "u32"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *Cursor) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

// ReadVarint reads 7 bits per byte, least significant group first, with the
// high bit flagging continuation.
func (c *Cursor) ReadVarint() (uint32, error) {
	var value uint32
	for i := 0; i < maxVarintBytes; i++ {
		b, err := c.ReadU8()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&VarintMask) << (VarintBits * i)
		if b&VarintMore == 0 {
			return value, nil
		}
	}
	return 0, imgerr.New(imgerr.Malformed, "cursor", "varint longer than %d bytes", maxVarintBytes)
}

// ReadBytes returns the next n bytes. The result aliases the underlying slice.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n, "bytes"); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *Cursor) Skip(n int) error {
	if err := c.need(n, "skip"); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Align skips padding up to the next multiple of n.
func (c *Cursor) Align(n int) error {
	pad := (n - c.off%n) % n
	return c.Skip(pad)
}

// Writer is the append-only counterpart of Cursor.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) PutU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutI32(v int32) {
	w.PutU32(uint32(v))
}

func (w *Writer) PutVarint(v uint32) {
	for v > VarintMask {
		w.buf = append(w.buf, byte(v&VarintMask)|VarintMore)
		v >>= VarintBits
	}
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Align pads with zero bytes up to the next multiple of n.
func (w *Writer) Align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

// VarintLen is the encoded size of v in bytes.
func VarintLen(v uint32) int {
	n := 1
	for v > VarintMask {
		v >>= VarintBits
		n++
	}
	return n
}
