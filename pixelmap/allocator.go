package pixelmap

import (
	"runtime"
	"sync/atomic"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/shm"
	"github.com/kpfaulkner/pixmap-go/util"
	log "github.com/sirupsen/logrus"
)

// CustomAllocator supplies memory for AllocatorCustom buffers. Free is called
// exactly once with the memory, the context returned by Alloc and the size.
type CustomAllocator interface {
	Alloc(size int) (mem []byte, ctx any, err error)
	Free(mem []byte, ctx any, size int)
}

// storage owns the backing memory of one buffer. release is only ever called
// once because the buffer gives up its reference before calling it.
type storage interface {
	kind() AllocatorKind
	bytes() []byte
	fd() int
	release() error
}

type heapStorage struct {
	buf  []byte
	pool *util.BytePool
}

func (s *heapStorage) kind() AllocatorKind { return AllocatorHeap }
func (s *heapStorage) bytes() []byte       { return s.buf }
func (s *heapStorage) fd() int             { return -1 }

func (s *heapStorage) release() error {
	if s.pool != nil {
		s.pool.Put(s.buf)
	}
	s.buf = nil
	return nil
}

type customStorage struct {
	buf   []byte
	size  int
	ctx   any
	alloc CustomAllocator
}

func (s *customStorage) kind() AllocatorKind { return AllocatorCustom }
func (s *customStorage) bytes() []byte       { return s.buf }
func (s *customStorage) fd() int             { return -1 }

func (s *customStorage) release() error {
	s.alloc.Free(s.buf, s.ctx, s.size)
	s.buf = nil
	return nil
}

type shmStorage struct {
	seg *shm.Segment
}

func (s *shmStorage) kind() AllocatorKind { return AllocatorSharedMemory }
func (s *shmStorage) bytes() []byte       { return s.seg.Bytes() }
func (s *shmStorage) fd() int             { return s.seg.Fd() }

func (s *shmStorage) release() error {
	runtime.SetFinalizer(s, nil)
	return s.seg.Close()
}

type dmaStorage struct {
	mem []byte
}

func (s *dmaStorage) kind() AllocatorKind { return AllocatorDma }
func (s *dmaStorage) bytes() []byte       { return s.mem }
func (s *dmaStorage) fd() int             { return -1 }

func (s *dmaStorage) release() error {
	runtime.SetFinalizer(s, nil)
	mem := s.mem
	s.mem = nil
	return shm.Unmap(mem)
}

func newShmStorage(seg *shm.Segment) *shmStorage {
	s := &shmStorage{seg: seg}
	runtime.SetFinalizer(s, finalizeStorage)
	return s
}

func newDmaStorage(mem []byte) *dmaStorage {
	s := &dmaStorage{mem: mem}
	runtime.SetFinalizer(s, finalizeStorage)
	return s
}

// finalizeStorage unmaps storage of a buffer dropped without Release.
func finalizeStorage(s storage) {
	log.Debugf("releasing abandoned %s buffer", s.kind())
	untrack(s.kind(), len(s.bytes()))
	if err := s.release(); err != nil {
		log.Warnf("releasing abandoned %s buffer: %v", s.kind(), err)
	}
}

// allocate returns storage of at least size bytes. Row strides are decided by the caller.
func allocate(kind AllocatorKind, size int, cfg *createConfig) (storage, error) {
	var st storage
	switch kind {
	case AllocatorHeap:
		pool := cfg.pool
		if pool == nil {
			pool = util.DefaultBytePool()
		}
		st = &heapStorage{buf: pool.Get(size), pool: pool}

	case AllocatorSharedMemory:
		seg, err := shm.Create(size)
		if err != nil {
			return nil, err
		}
		st = newShmStorage(seg)

	case AllocatorCustom:
		if cfg.custom == nil {
			return nil, imgerr.New(imgerr.InvalidParameter, "allocate", "custom allocation without an allocator")
		}
		mem, ctx, err := cfg.custom.Alloc(size)
		if err != nil {
			log.Errorf("custom allocator failed for %d bytes: %v", size, err)
			return nil, imgerr.Wrap(imgerr.AllocFailed, "allocate", err)
		}
		if len(mem) < size {
			cfg.custom.Free(mem, ctx, len(mem))
			return nil, imgerr.New(imgerr.AllocFailed, "allocate", "custom allocator returned %d bytes, need %d", len(mem), size)
		}
		st = &customStorage{buf: mem[:size], size: size, ctx: ctx, alloc: cfg.custom}

	case AllocatorDma:
		mem, err := shm.MapAnonymous(size)
		if err != nil {
			return nil, err
		}
		st = newDmaStorage(mem)

	default:
		return nil, imgerr.New(imgerr.InvalidParameter, "allocate", "unsupported allocator %s", kind)
	}
	track(kind, size)
	return st, nil
}

func releaseStorage(st storage) error {
	untrack(st.kind(), len(st.bytes()))
	return st.release()
}

var (
	liveBuffers [numAllocatorKinds]atomic.Int64
	liveBytes   [numAllocatorKinds]atomic.Int64
)

func track(kind AllocatorKind, size int) {
	liveBuffers[kind].Add(1)
	liveBytes[kind].Add(int64(size))
}

func untrack(kind AllocatorKind, size int) {
	liveBuffers[kind].Add(-1)
	liveBytes[kind].Add(-int64(size))
}

// AllocStats counts live buffers and bytes per allocator kind.
type AllocStats struct {
	Buffers map[AllocatorKind]int64
	Bytes   map[AllocatorKind]int64
}

func Stats() AllocStats {
	st := AllocStats{
		Buffers: make(map[AllocatorKind]int64),
		Bytes:   make(map[AllocatorKind]int64),
	}
	for k := AllocatorHeap; k < numAllocatorKinds; k++ {
		st.Buffers[k] = liveBuffers[k].Load()
		st.Bytes[k] = liveBytes[k].Load()
	}
	return st
}
