//go:build linux

package shm

import (
	"github.com/kpfaulkner/pixmap-go/imgerr"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Supported reports whether shared memory segments can be created on this platform.
func Supported() bool {
	return true
}

// Create makes a new read/write segment of size bytes.
func Create(size int) (*Segment, error) {
	if size <= 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "shm create", "invalid size %d", size)
	}
	name := newName()
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		log.Errorf("memfd_create %s failed: %v", name, err)
		return nil, imgerr.Wrap(imgerr.AllocFailed, "shm create", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		log.Errorf("ftruncate %s to %d failed: %v", name, size, err)
		return nil, imgerr.Wrap(imgerr.AllocFailed, "shm create", err)
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		log.Errorf("mmap %s failed: %v", name, err)
		return nil, imgerr.Wrap(imgerr.AllocFailed, "shm create", err)
	}
	return &Segment{name: name, fd: fd, mem: mem, writable: true}, nil
}

// Open maps an existing descriptor. On success the segment owns fd; on error the
// caller still does.
// A segment sealed against writes can only be opened read-only.
func Open(fd int, size int, writable bool) (*Segment, error) {
	if fd < 0 || size <= 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "shm open", "invalid descriptor %d or size %d", fd, size)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "shm open", err)
	}
	if st.Size < int64(size) {
		return nil, imgerr.New(imgerr.Malformed, "shm open", "segment holds %d bytes, need %d", st.Size, size)
	}

	sealed := false
	if seals, err := unix.FcntlInt(uintptr(fd), unix.F_GET_SEALS, 0); err == nil {
		sealed = seals&unix.F_SEAL_WRITE != 0
	}
	if sealed && writable {
		return nil, imgerr.New(imgerr.InvalidParameter, "shm open", "segment is sealed against writes")
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	mem, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		log.Errorf("mmap of fd %d failed: %v", fd, err)
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "shm open", err)
	}
	return &Segment{name: "fd", fd: fd, mem: mem, writable: writable, sealed: sealed}, nil
}

// Seal makes the segment immutable for every holder: the size is frozen and no
// new writable mapping can be made. The local mapping is remapped read-only.
func (s *Segment) Seal() error {
	if err := s.closed(); err != nil {
		return err
	}
	if s.sealed {
		return nil
	}
	size := len(s.mem)
	// F_SEAL_WRITE is refused while a writable shared mapping exists
	if err := unix.Munmap(s.mem); err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "shm seal", err)
	}
	s.mem = nil
	if _, err := unix.FcntlInt(uintptr(s.fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_WRITE|unix.F_SEAL_SEAL); err != nil {
		log.Errorf("sealing %s failed: %v", s.name, err)
		return imgerr.Wrap(imgerr.IoAbnormal, "shm seal", err)
	}
	mem, err := unix.Mmap(s.fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "shm seal", err)
	}
	s.mem = mem
	s.writable = false
	s.sealed = true
	return nil
}

// Dup returns a new close-on-exec descriptor for the segment. The caller owns it.
func (s *Segment) Dup() (int, error) {
	if err := s.closed(); err != nil {
		return -1, err
	}
	return Dup(s.fd)
}

func (s *Segment) Close() error {
	if s.mem == nil && s.fd < 0 {
		return nil
	}
	var firstErr error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil {
			firstErr = err
		}
		s.mem = nil
	}
	if s.fd >= 0 {
		if err := unix.Close(s.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		s.fd = -1
	}
	if firstErr != nil {
		log.Errorf("closing segment %s: %v", s.name, firstErr)
		return imgerr.Wrap(imgerr.IoAbnormal, "shm close", firstErr)
	}
	return nil
}

// Dup duplicates fd with close-on-exec set.
func Dup(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, imgerr.Wrap(imgerr.IoAbnormal, "dup", err)
	}
	return nfd, nil
}

// CloseFd closes a raw descriptor received from a peer.
func CloseFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "close fd", err)
	}
	return nil
}

// MapAnonymous returns a private page aligned mapping of size bytes, used for
// DMA style buffers that never leave the process.
func MapAnonymous(size int) ([]byte, error) {
	if size <= 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "map anonymous", "invalid size %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		log.Errorf("anonymous mmap of %d bytes failed: %v", size, err)
		return nil, imgerr.Wrap(imgerr.AllocFailed, "map anonymous", err)
	}
	return mem, nil
}

func Unmap(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "unmap", err)
	}
	return nil
}
