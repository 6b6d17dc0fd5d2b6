package serial

import (
	"runtime"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/shm"
	log "github.com/sirupsen/logrus"
)

// DataMode tags how raw pixel bytes travel in a parcel.
type DataMode int32

const (
	ModeInline DataMode = iota
	ModeSharedImmutable
	ModeSharedMutable
)

func (m DataMode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	case ModeSharedImmutable:
		return "shared-immutable"
	case ModeSharedMutable:
		return "shared-mutable"
	}
	return "invalid"
}

const (
	// InlineThreshold is the largest pixel payload written into the parcel
	// itself. Bigger payloads go through a shared memory sidecar.
	InlineThreshold = 16 * 1024

	maxColorSpaceName = 80
)

// WritePixelBuffer appends pb to p. A read-only shared memory buffer is sent
// as its descriptor alone; anything else carries its bytes inline or in a
// freshly created segment, sealed when the buffer is not editable.
func WritePixelBuffer(p *Parcel, pb *pixelmap.PixelBuffer) error {
	// the descriptor and mapping are only borrowed until the parcel holds its own copy
	defer runtime.KeepAlive(pb)
	if pb == nil || pb.Released() {
		return imgerr.New(imgerr.InvalidParameter, "parcel write", "no pixel buffer")
	}
	info := pb.Info()
	byteCount := pb.ByteCount()
	if byteCount > MaxTLVData {
		return imgerr.New(imgerr.InvalidParameter, "parcel write", "%d pixel bytes exceed %d", byteCount, MaxTLVData)
	}
	mutable := pb.IsEditable()

	if err := p.WriteBool(mutable); err != nil {
		return err
	}
	if err := writeInts(p, int32(info.PixelFormat), int32(info.AlphaType)); err != nil {
		return err
	}
	if err := p.WriteString(info.ColorSpace.String()); err != nil {
		return err
	}
	err := writeInts(p, int32(info.Width()), int32(info.Height()), int32(pb.RowStride()), int32(info.BaseDensity), int32(pb.Allocator()))
	if err != nil {
		return err
	}

	if pb.Allocator() == pixelmap.AllocatorSharedMemory && !mutable {
		return p.WriteFd(pb.Fd())
	}

	mode := ModeInline
	var seg *shm.Segment
	if byteCount > InlineThreshold {
		if seg, err = sidecar(pb.Pixels(), mutable); err != nil {
			log.Warnf("parcel write: shared memory unavailable, sending %d bytes inline: %v", byteCount, err)
		} else {
			defer seg.Close()
			mode = ModeSharedImmutable
			if mutable {
				mode = ModeSharedMutable
			}
		}
	}
	if err := p.WriteInt32(int32(mode)); err != nil {
		return err
	}
	if err := p.WriteInt32(int32(byteCount)); err != nil {
		return err
	}
	if mode == ModeInline {
		return p.WriteBuffer(pb.Pixels())
	}
	return p.WriteFd(seg.Fd())
}

func writeInts(p *Parcel, vals ...int32) error {
	for _, v := range vals {
		if err := p.WriteInt32(v); err != nil {
			return err
		}
	}
	return nil
}

func sidecar(pixels []byte, mutable bool) (*shm.Segment, error) {
	seg, err := shm.Create(len(pixels))
	if err != nil {
		return nil, err
	}
	copy(seg.Bytes(), pixels)
	if !mutable {
		if err := seg.Seal(); err != nil {
			seg.Close()
			return nil, err
		}
	}
	return seg, nil
}

// ReadPixelBuffer reads a buffer written by WritePixelBuffer. Shared memory
// payloads are mapped rather than copied and the result is SharedMemory
// backed; it is writable only when the sender marked it mutable.
func ReadPixelBuffer(p *Parcel) (*pixelmap.PixelBuffer, error) {
	mutable, err := p.ReadBool()
	if err != nil {
		return nil, err
	}
	var head [2]int32
	for i := range head {
		if head[i], err = p.ReadInt32(); err != nil {
			return nil, err
		}
	}
	name, err := p.ReadString(maxColorSpaceName)
	if err != nil {
		return nil, err
	}
	cs, ok := pixelmap.ParseColorSpace(name)
	if !ok {
		return nil, imgerr.New(imgerr.Malformed, "parcel read", "unknown colour space %q", name)
	}
	var dims [5]int32
	for i := range dims {
		if dims[i], err = p.ReadInt32(); err != nil {
			return nil, err
		}
	}

	info := pixelmap.ImageInfo{
		Size:        pixelmap.Size{Width: int(dims[0]), Height: int(dims[1])},
		PixelFormat: pixelmap.PixelFormat(head[0]),
		AlphaType:   pixelmap.AlphaType(head[1]),
		ColorSpace:  cs,
		BaseDensity: int(dims[3]),
		FrameCount:  1,
	}
	stride := int(dims[2])
	allocator := pixelmap.AllocatorKind(dims[4])
	if !info.PixelFormat.Valid() || info.Width() <= 0 || info.Height() <= 0 ||
		info.Width() > pixelmap.MaxDimension || info.Height() > pixelmap.MaxDimension || !allocator.Valid() {
		return nil, imgerr.New(imgerr.Malformed, "parcel read", "invalid image %dx%d %s allocator %d", info.Width(), info.Height(), info.PixelFormat, int(allocator))
	}
	if stride < info.MinRowStride() {
		return nil, imgerr.New(imgerr.Malformed, "parcel read", "row stride %d below %d", stride, info.MinRowStride())
	}
	size := info.ByteCountFor(stride)
	if size > MaxTLVData {
		return nil, imgerr.New(imgerr.Malformed, "parcel read", "%d pixel bytes exceed %d", size, MaxTLVData)
	}

	if allocator == pixelmap.AllocatorSharedMemory && !mutable {
		return mapSegment(p, info, stride, int(size), false)
	}

	mode, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	byteCount, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if int64(byteCount) != size {
		return nil, imgerr.New(imgerr.Malformed, "parcel read", "byte count %d, image needs %d", byteCount, size)
	}

	switch DataMode(mode) {
	case ModeInline:
		data, err := p.ReadBuffer(int(byteCount))
		if err != nil {
			return nil, err
		}
		pb, err := pixelmap.Create(info, pixelmap.AllocatorHeap, pixelmap.WithRowStride(stride), pixelmap.WithEditable(mutable))
		if err != nil {
			return nil, err
		}
		copy(pb.Pixels(), data)
		return pb, nil
	case ModeSharedImmutable:
		return mapSegment(p, info, stride, int(size), false)
	case ModeSharedMutable:
		pb, err := mapSegment(p, info, stride, int(size), true)
		if err != nil {
			return nil, err
		}
		if err := pb.SetEditable(mutable); err != nil {
			pb.Release()
			return nil, err
		}
		return pb, nil
	}
	return nil, imgerr.New(imgerr.Malformed, "parcel read", "unknown data mode %d", mode)
}

func mapSegment(p *Parcel, info pixelmap.ImageInfo, stride int, size int, writable bool) (*pixelmap.PixelBuffer, error) {
	fd, err := p.ReadFd()
	if err != nil {
		return nil, err
	}
	seg, err := shm.Open(fd, size, writable)
	if err != nil {
		shm.CloseFd(fd)
		return nil, err
	}
	pb, err := pixelmap.NewFromSegment(info, stride, seg)
	if err != nil {
		seg.Close()
		return nil, err
	}
	return pb, nil
}
