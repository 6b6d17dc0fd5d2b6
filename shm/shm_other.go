//go:build !linux

package shm

import (
	"github.com/kpfaulkner/pixmap-go/imgerr"
)

func Supported() bool {
	return false
}

func unsupported(op string) error {
	return imgerr.New(imgerr.AllocFailed, op, "shared memory is not supported on this platform")
}

func Create(size int) (*Segment, error) {
	return nil, unsupported("shm create")
}

func Open(fd int, size int, writable bool) (*Segment, error) {
	return nil, unsupported("shm open")
}

func (s *Segment) Seal() error {
	return unsupported("shm seal")
}

func (s *Segment) Dup() (int, error) {
	return -1, unsupported("dup")
}

func (s *Segment) Close() error {
	s.mem = nil
	s.fd = -1
	return nil
}

func Dup(fd int) (int, error) {
	return -1, unsupported("dup")
}

func CloseFd(fd int) error {
	return unsupported("close fd")
}

// MapAnonymous falls back to the Go heap where mmap is unavailable.
func MapAnonymous(size int) ([]byte, error) {
	if size <= 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "map anonymous", "invalid size %d", size)
	}
	return make([]byte, size), nil
}

func Unmap(mem []byte) error {
	return nil
}
