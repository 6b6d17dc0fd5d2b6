package testcommon

import (
	"errors"
	"fmt"
	"io"

	"github.com/kpfaulkner/pixmap-go/pxio"
)

// FakeSource is a ByteSource over Data that fails with ReadErr for any read
// touching bytes at or beyond FailAt. Tests use it to simulate a broken descriptor.
type FakeSource struct {
	Data     []byte
	FailAt   int64
	ReadErr  error
	Complete bool

	offset    int64
	CloseCall int
}

func NewFakeSource(data []byte, failAt int64) *FakeSource {
	return &FakeSource{Data: data, FailAt: failAt, ReadErr: errors.New("fake read failure"), Complete: true}
}

func (fs *FakeSource) Read(p []byte) (int, error) {
	n, err := fs.ReadAt(p, fs.offset)
	fs.offset += int64(n)
	return n, err
}

func (fs *FakeSource) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > fs.FailAt {
		return 0, fs.ReadErr
	}
	if off >= int64(len(fs.Data)) {
		return 0, io.EOF
	}
	n := copy(p, fs.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (fs *FakeSource) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		fs.offset = offset
	case io.SeekCurrent:
		fs.offset += offset
	case io.SeekEnd:
		fs.offset = int64(len(fs.Data)) + offset
	default:
		return 0, fmt.Errorf("bad whence %d", whence)
	}
	return fs.offset, nil
}

func (fs *FakeSource) Peek(n int) ([]byte, error) {
	buf := make([]byte, n)
	m, err := fs.ReadAt(buf, fs.offset)
	return buf[:m], err
}

func (fs *FakeSource) Tell() int64 {
	return fs.offset
}

func (fs *FakeSource) Size() int64 {
	return int64(len(fs.Data))
}

func (fs *FakeSource) IsComplete() bool {
	return fs.Complete
}

func (fs *FakeSource) Kind() pxio.SourceKind {
	return pxio.KindFile
}

func (fs *FakeSource) Close() error {
	fs.CloseCall++
	return nil
}
