// Package shm manages anonymous shared memory segments that can be handed to
// another process as a file descriptor.
package shm

import (
	"github.com/google/uuid"
	"github.com/kpfaulkner/pixmap-go/imgerr"
)

const namePrefix = "pixmap-"

// Segment is a mapped shared memory region backed by a descriptor.
// Close unmaps the region and closes the descriptor; the segment itself lives
// on for as long as another process holds a descriptor to it.
type Segment struct {
	name     string
	fd       int
	mem      []byte
	writable bool
	sealed   bool
}

func newName() string {
	return namePrefix + uuid.NewString()
}

func (s *Segment) Name() string {
	return s.name
}

// Fd is the descriptor owned by the segment. It stays valid until Close.
func (s *Segment) Fd() int {
	return s.fd
}

func (s *Segment) Bytes() []byte {
	return s.mem
}

func (s *Segment) Size() int {
	return len(s.mem)
}

func (s *Segment) Writable() bool {
	return s.writable
}

func (s *Segment) Sealed() bool {
	return s.sealed
}

func (s *Segment) closed() error {
	if s.mem == nil && s.fd < 0 {
		return imgerr.New(imgerr.InvalidParameter, "shm", "segment %s already closed", s.name)
	}
	return nil
}
