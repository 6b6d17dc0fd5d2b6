package pxio

import (
	"io"
	"os"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	log "github.com/sirupsen/logrus"
)

// FileSource reads from an open file. The whole file is available, so the
// source is complete on creation.
type FileSource struct {
	f      *os.File
	size   int64
	offset int64
}

func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("Error opening file: %v", err)
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "open", err)
	}
	src, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewFDSource takes ownership of fd. Closing the source closes the descriptor.
func NewFDSource(fd uintptr) (*FileSource, error) {
	f := os.NewFile(fd, "fd")
	if f == nil {
		return nil, imgerr.New(imgerr.InvalidParameter, "fd source", "invalid descriptor %d", fd)
	}
	src, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func newFileSource(f *os.File) (*FileSource, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "stat", err)
	}
	if fi.IsDir() {
		return nil, imgerr.New(imgerr.InvalidParameter, "file source", "%s is a directory", fi.Name())
	}
	return &FileSource{f: f, size: fi.Size()}, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	n, err := s.f.ReadAt(p, s.offset)
	s.offset += int64(n)
	if err != nil && err != io.EOF {
		return n, imgerr.Wrap(imgerr.IoAbnormal, "read", err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, imgerr.Wrap(imgerr.IoAbnormal, "read at", err)
	}
	return n, err
}

func (s *FileSource) Seek(offset int64, whence int) (int64, error) {
	abs, err := seekTarget(offset, whence, s.offset, s.size)
	if err != nil {
		return s.offset, err
	}
	s.offset = abs
	return abs, nil
}

func (s *FileSource) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "peek", "negative length %d", n)
	}
	avail := s.size - s.offset
	want := int64(n)
	if want > avail {
		want = avail
	}
	buf := make([]byte, want)
	if want > 0 {
		if _, err := s.f.ReadAt(buf, s.offset); err != nil && err != io.EOF {
			return nil, imgerr.Wrap(imgerr.IoAbnormal, "peek", err)
		}
	}
	if want < int64(n) {
		return buf, io.EOF
	}
	return buf, nil
}

func (s *FileSource) Tell() int64 {
	return s.offset
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) IsComplete() bool {
	return true
}

func (s *FileSource) Kind() SourceKind {
	return KindFile
}

func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "close", err)
	}
	return nil
}
