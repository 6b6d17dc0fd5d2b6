package serial

import (
	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pxio"
	"github.com/kpfaulkner/pixmap-go/shm"
	log "github.com/sirupsen/logrus"
)

const parcelAlign = 4

// Parcel is a flat message of 4-byte aligned little-endian values plus a table
// of file descriptors travelling out of band. Descriptors written into a
// parcel are duplicated and owned by it until Close; descriptors read out are
// duplicated again so the caller owns its copy.
type Parcel struct {
	w   *pxio.Writer
	c   *pxio.Cursor
	fds []int
}

func NewParcel() *Parcel {
	return &Parcel{w: pxio.NewWriter(256)}
}

// NewParcelFrom wraps received data. The parcel takes ownership of fds.
func NewParcelFrom(data []byte, fds []int) *Parcel {
	return &Parcel{c: pxio.NewCursor(data), fds: fds}
}

// Data is the encoded payload without descriptors.
func (p *Parcel) Data() []byte {
	if p.w == nil {
		return nil
	}
	return p.w.Bytes()
}

// Fds is the descriptor table, still owned by the parcel.
func (p *Parcel) Fds() []int {
	return p.fds
}

func (p *Parcel) writer() (*pxio.Writer, error) {
	if p.w == nil {
		return nil, imgerr.New(imgerr.InvalidParameter, "parcel", "parcel is read-only")
	}
	return p.w, nil
}

// cursor reads a received parcel, or rewinds over what has been written so a
// parcel can be read back in process.
func (p *Parcel) cursor() *pxio.Cursor {
	if p.c == nil {
		p.c = pxio.NewCursor(p.Data())
	}
	return p.c
}

func (p *Parcel) WriteInt32(v int32) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	w.PutI32(v)
	return nil
}

func (p *Parcel) WriteUint32(v uint32) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	w.PutU32(v)
	return nil
}

func (p *Parcel) WriteBool(v bool) error {
	if v {
		return p.WriteInt32(1)
	}
	return p.WriteInt32(0)
}

// WriteString writes a u32 length and the bytes, padded.
func (p *Parcel) WriteString(s string) error {
	if err := p.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	return p.WriteBuffer([]byte(s))
}

// WriteBuffer writes raw bytes, padded. The length travels separately.
func (p *Parcel) WriteBuffer(b []byte) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	w.PutBytes(b)
	w.Align(parcelAlign)
	return nil
}

// WriteFd duplicates fd into the descriptor table and writes its index.
func (p *Parcel) WriteFd(fd int) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	dup, err := shm.Dup(fd)
	if err != nil {
		return err
	}
	p.fds = append(p.fds, dup)
	w.PutI32(int32(len(p.fds) - 1))
	return nil
}

func (p *Parcel) ReadInt32() (int32, error) {
	return p.cursor().ReadI32()
}

func (p *Parcel) ReadUint32() (uint32, error) {
	return p.cursor().ReadU32()
}

func (p *Parcel) ReadBool() (bool, error) {
	v, err := p.ReadInt32()
	return v != 0, err
}

// ReadString rejects strings longer than max.
func (p *Parcel) ReadString(max int) (string, error) {
	n, err := p.ReadUint32()
	if err != nil {
		return "", err
	}
	if int64(n) > int64(max) {
		return "", imgerr.New(imgerr.Malformed, "parcel", "string of %d bytes exceeds %d", n, max)
	}
	b, err := p.ReadBuffer(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBuffer returns the next n bytes and skips the padding. The result
// aliases the parcel data.
func (p *Parcel) ReadBuffer(n int) ([]byte, error) {
	c := p.cursor()
	b, err := c.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	if err := c.Align(parcelAlign); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadFd returns a new descriptor the caller must close.
func (p *Parcel) ReadFd() (int, error) {
	idx, err := p.ReadInt32()
	if err != nil {
		return -1, err
	}
	if idx < 0 || int(idx) >= len(p.fds) {
		return -1, imgerr.New(imgerr.Malformed, "parcel", "descriptor index %d outside table of %d", idx, len(p.fds))
	}
	return shm.Dup(p.fds[idx])
}

// Close closes every descriptor the parcel owns.
func (p *Parcel) Close() error {
	var first error
	for _, fd := range p.fds {
		if err := shm.CloseFd(fd); err != nil {
			log.Warnf("parcel: closing fd %d: %v", fd, err)
			if first == nil {
				first = err
			}
		}
	}
	p.fds = nil
	return first
}
