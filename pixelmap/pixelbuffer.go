// Package pixelmap holds decoded pixels together with the allocator that owns them.
package pixelmap

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/shm"
	"github.com/kpfaulkner/pixmap-go/util"
	log "github.com/sirupsen/logrus"
)

type createConfig struct {
	rowStride int
	editable  bool
	custom    CustomAllocator
	pool      *util.BytePool
}

type Option func(c *createConfig) error

// WithRowStride requests an explicit row stride. It must be at least width * bytes per pixel.
func WithRowStride(stride int) Option {
	return func(c *createConfig) error {
		if stride <= 0 {
			return imgerr.New(imgerr.InvalidParameter, "create", "invalid row stride %d", stride)
		}
		c.rowStride = stride
		return nil
	}
}

func WithEditable(editable bool) Option {
	return func(c *createConfig) error {
		c.editable = editable
		return nil
	}
}

// WithCustomAllocator is required for AllocatorCustom.
func WithCustomAllocator(a CustomAllocator) Option {
	return func(c *createConfig) error {
		c.custom = a
		return nil
	}
}

// WithBytePool serves heap allocations from pool instead of the default pool.
func WithBytePool(pool *util.BytePool) Option {
	return func(c *createConfig) error {
		c.pool = pool
		return nil
	}
}

// PixelBuffer is a rectangular pixel store bound to exactly one allocator.
//
// A PixelBuffer is not safe for concurrent mutation. The internal mutex only
// keeps individual transforms from interleaving their steps; callers must
// serialize writes themselves.
type PixelBuffer struct {
	mu sync.Mutex

	info      ImageInfo
	rowStride int
	store     storage
	editable  bool

	// kept for reallocation of custom buffers
	cfg createConfig

	generation atomic.Uint64
}

// Create allocates a buffer for info. AllocatorDefault means heap.
func Create(info ImageInfo, kind AllocatorKind, opts ...Option) (*PixelBuffer, error) {
	cfg := createConfig{editable: true}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if kind == AllocatorDefault {
		kind = AllocatorHeap
	}
	if !kind.Valid() {
		return nil, imgerr.New(imgerr.InvalidParameter, "create", "unknown allocator %d", int(kind))
	}
	if err := validateInfo(info); err != nil {
		return nil, err
	}

	stride, size, err := layoutFor(info, kind, cfg.rowStride)
	if err != nil {
		return nil, err
	}

	st, err := allocate(kind, size, &cfg)
	if err != nil {
		return nil, err
	}

	pb := &PixelBuffer{
		info:      info,
		rowStride: stride,
		store:     st,
		editable:  cfg.editable,
		cfg:       cfg,
	}
	log.Debugf("created %dx%d %s buffer (%s, stride %d)", info.Width(), info.Height(), info.PixelFormat, kind, stride)
	return pb, nil
}

func validateInfo(info ImageInfo) error {
	w, h := info.Width(), info.Height()
	if w <= 0 || h <= 0 {
		return imgerr.New(imgerr.InvalidParameter, "create", "invalid size %dx%d", w, h)
	}
	if w > MaxDimension || h > MaxDimension {
		return imgerr.New(imgerr.InvalidParameter, "create", "size %dx%d exceeds maximum dimension", w, h)
	}
	if !info.PixelFormat.Valid() {
		return imgerr.New(imgerr.InvalidParameter, "create", "invalid pixel format %s", info.PixelFormat)
	}
	if !info.ColorSpace.Valid() {
		return imgerr.New(imgerr.InvalidParameter, "create", "invalid color space %d", int(info.ColorSpace))
	}
	return nil
}

// layoutFor returns the row stride and total byte count for a new allocation.
func layoutFor(info ImageInfo, kind AllocatorKind, requested int) (int, int, error) {
	minStride := info.MinRowStride()
	if util.MulOverflows(info.Width(), info.PixelFormat.BytesPerPixel()) {
		return 0, 0, imgerr.New(imgerr.AllocFailed, "create", "row of %d pixels overflows", info.Width())
	}

	stride := minStride
	if requested != 0 {
		if requested < minStride {
			return 0, 0, imgerr.New(imgerr.InvalidParameter, "create", "row stride %d below minimum %d", requested, minStride)
		}
		stride = requested
	}
	if kind == AllocatorDma {
		stride = util.AlignUp(stride, dmaStrideAlign)
	}

	if util.MulOverflows(int64(stride), int64(info.PlaneRows())) {
		return 0, 0, imgerr.New(imgerr.AllocFailed, "create", "buffer size overflows")
	}
	size := info.ByteCountFor(stride)
	if size > MaxByteCount {
		log.Errorf("requested %d bytes exceeds ceiling of %d", size, MaxByteCount)
		return 0, 0, imgerr.New(imgerr.AllocFailed, "create", "%d bytes exceeds the %d byte ceiling", size, MaxByteCount)
	}
	return stride, int(size), nil
}

const dmaStrideAlign = 64

// NewFromSegment binds an already mapped shared memory segment to a new buffer.
// The buffer takes ownership of seg and is editable only if the mapping is writable.
func NewFromSegment(info ImageInfo, rowStride int, seg *shm.Segment) (*PixelBuffer, error) {
	if err := validateInfo(info); err != nil {
		return nil, err
	}
	if rowStride < info.MinRowStride() {
		return nil, imgerr.New(imgerr.Malformed, "from segment", "row stride %d below minimum %d", rowStride, info.MinRowStride())
	}
	need := info.ByteCountFor(rowStride)
	if need > int64(seg.Size()) {
		return nil, imgerr.New(imgerr.Malformed, "from segment", "segment holds %d bytes, need %d", seg.Size(), need)
	}
	st := newShmStorage(seg)
	track(AllocatorSharedMemory, seg.Size())
	return &PixelBuffer{
		info:      info,
		rowStride: rowStride,
		store:     st,
		editable:  seg.Writable(),
	}, nil
}

func (pb *PixelBuffer) Info() ImageInfo {
	return pb.info
}

func (pb *PixelBuffer) Width() int {
	return pb.info.Width()
}

func (pb *PixelBuffer) Height() int {
	return pb.info.Height()
}

func (pb *PixelBuffer) PixelFormat() PixelFormat {
	return pb.info.PixelFormat
}

func (pb *PixelBuffer) AlphaType() AlphaType {
	return pb.info.AlphaType
}

func (pb *PixelBuffer) ColorSpace() ColorSpace {
	return pb.info.ColorSpace
}

// SetColorSpace tags the pixels with a color space without converting them.
func (pb *PixelBuffer) SetColorSpace(cs ColorSpace) error {
	if !cs.Valid() {
		return imgerr.New(imgerr.InvalidParameter, "set color space", "invalid color space %d", int(cs))
	}
	pb.info.ColorSpace = cs
	return nil
}

func (pb *PixelBuffer) RowStride() int {
	return pb.rowStride
}

// ByteCount is the number of bytes the image occupies, excluding any spare capacity.
func (pb *PixelBuffer) ByteCount() int {
	return int(pb.info.ByteCountFor(pb.rowStride))
}

// Capacity is the size of the backing memory.
func (pb *PixelBuffer) Capacity() int {
	if pb.store == nil {
		return 0
	}
	return len(pb.store.bytes())
}

func (pb *PixelBuffer) Allocator() AllocatorKind {
	if pb.store == nil {
		return AllocatorDefault
	}
	return pb.store.kind()
}

// Fd is the shared memory descriptor, or -1 for other allocators.
func (pb *PixelBuffer) Fd() int {
	if pb.store == nil {
		return -1
	}
	return pb.store.fd()
}

func (pb *PixelBuffer) IsEditable() bool {
	return pb.editable
}

// SetEditable toggles write access. A read-only shared mapping can never become editable.
func (pb *PixelBuffer) SetEditable(editable bool) error {
	if editable {
		if s, ok := pb.store.(*shmStorage); ok && !s.seg.Writable() {
			return imgerr.New(imgerr.InvalidParameter, "set editable", "shared memory mapping is read-only")
		}
	}
	pb.editable = editable
	return nil
}

// Generation increments on every pixel mutation.
func (pb *PixelBuffer) Generation() uint64 {
	return pb.generation.Load()
}

func (pb *PixelBuffer) bump() {
	pb.generation.Add(1)
}

// Pixels returns the image bytes. The slice is only valid until the buffer is
// released or reallocated by a transform. Writing through it bypasses the
// editable check and the generation counter.
//
// The slice does not keep the buffer reachable. SharedMemory and Dma memory is
// unmapped once an unreleased buffer is collected, so the caller must keep pb
// alive (runtime.KeepAlive) for as long as the slice is used, or use WithPixels.
func (pb *PixelBuffer) Pixels() []byte {
	if pb.store == nil {
		return nil
	}
	return pb.store.bytes()[:pb.ByteCount()]
}

// WithPixels calls fn with the image bytes and keeps the buffer mapped until fn
// returns. fn must not retain the slice.
func (pb *PixelBuffer) WithPixels(fn func(px []byte) error) error {
	defer runtime.KeepAlive(pb)
	if pb.store == nil {
		return errReleased("pixels")
	}
	return fn(pb.store.bytes()[:pb.ByteCount()])
}

func (pb *PixelBuffer) Released() bool {
	return pb.store == nil
}

// Release frees the backing memory through its allocator. The buffer gives up
// its storage first, so a second Release has nothing left to free.
func (pb *PixelBuffer) Release() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	st := pb.store
	pb.store = nil
	if st == nil {
		return nil
	}
	return releaseStorage(st)
}

// Clone deep copies the buffer into a new allocation of kind. The clone keeps
// the row stride where the allocator allows it and the source's editable flag
// unless an option overrides it.
func (pb *PixelBuffer) Clone(kind AllocatorKind, opts ...Option) (*PixelBuffer, error) {
	defer runtime.KeepAlive(pb)
	if pb.store == nil {
		return nil, errReleased("clone")
	}
	base := []Option{WithEditable(pb.editable), WithRowStride(pb.rowStride)}
	if pb.cfg.custom != nil {
		base = append(base, WithCustomAllocator(pb.cfg.custom))
	}
	clone, err := Create(pb.info, kind, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if clone.rowStride == pb.rowStride {
		copy(clone.store.bytes(), pb.Pixels())
	} else {
		copyRows(clone.store.bytes(), clone.rowStride, pb.store.bytes(), pb.rowStride, pb.info.MinRowStride(), pb.info.PlaneRows())
	}
	return clone, nil
}

func copyRows(dst []byte, dstStride int, src []byte, srcStride int, rowBytes int, rows int) {
	for y := 0; y < rows; y++ {
		s := y * srcStride
		d := y * dstStride
		if s+rowBytes > len(src) || d+rowBytes > len(dst) {
			return
		}
		copy(dst[d:d+rowBytes], src[s:s+rowBytes])
	}
}

func errReleased(op string) error {
	return imgerr.New(imgerr.InvalidParameter, op, "buffer has been released")
}

func (pb *PixelBuffer) checkWritable(op string) error {
	if pb.store == nil {
		return errReleased(op)
	}
	if !pb.editable {
		return imgerr.New(imgerr.InvalidParameter, op, "buffer is not editable")
	}
	return nil
}

// replaceStorage swaps in freshly allocated storage after a transform and
// releases the old one through its own allocator.
func (pb *PixelBuffer) replaceStorage(st storage, info ImageInfo, rowStride int) {
	old := pb.store
	pb.store = st
	pb.info = info
	pb.rowStride = rowStride
	if old != nil {
		if err := releaseStorage(old); err != nil {
			log.Warnf("releasing replaced %s storage: %v", old.kind(), err)
		}
	}
	pb.bump()
}

// reallocate allocates storage for info with the allocator this buffer would
// use for a transform result. Custom memory lands on the heap since the
// custom allocator's layout rules are unknown.
func (pb *PixelBuffer) reallocate(info ImageInfo) (storage, int, error) {
	kind := pb.store.kind()
	if kind == AllocatorCustom {
		kind = AllocatorHeap
	}
	stride, size, err := layoutFor(info, kind, 0)
	if err != nil {
		return nil, 0, err
	}
	st, err := allocate(kind, size, &pb.cfg)
	if err != nil {
		return nil, 0, err
	}
	return st, stride, nil
}
