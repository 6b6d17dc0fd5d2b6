package pixelmap

import (
	"runtime"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/testcommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgbaInfo(w int, h int) ImageInfo {
	return ImageInfo{
		Size:        Size{Width: w, Height: h},
		PixelFormat: FormatRGBA8888,
		AlphaType:   AlphaUnpremul,
		ColorSpace:  ColorSpaceSRGB,
		FrameCount:  1,
	}
}

func skipUnlessLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared memory needs linux")
	}
}

func TestCreateComputesStride(t *testing.T) {
	for _, tc := range []struct {
		name     string
		format   PixelFormat
		width    int
		expected int
	}{
		{name: "rgba", format: FormatRGBA8888, width: 10, expected: 40},
		{name: "rgb888", format: FormatRGB888, width: 10, expected: 30},
		{name: "rgb565", format: FormatRGB565, width: 10, expected: 20},
		{name: "alpha8", format: FormatAlpha8, width: 10, expected: 10},
		{name: "f16", format: FormatRGBAF16, width: 10, expected: 80},
	} {
		t.Run(tc.name, func(t *testing.T) {
			info := rgbaInfo(tc.width, 3)
			info.PixelFormat = tc.format
			pb, err := Create(info, AllocatorHeap)
			require.NoError(t, err)
			defer pb.Release()
			assert.Equal(t, tc.expected, pb.RowStride())
			assert.Equal(t, tc.expected*3, pb.ByteCount())
			assert.Equal(t, AllocatorHeap, pb.Allocator())
			assert.True(t, pb.IsEditable())
		})
	}
}

func TestCreateExplicitStride(t *testing.T) {
	pb, err := Create(rgbaInfo(10, 10), AllocatorDefault, WithRowStride(128))
	require.NoError(t, err)
	defer pb.Release()
	assert.Equal(t, 128, pb.RowStride())
	assert.Equal(t, 1280, pb.ByteCount())
	assert.Equal(t, AllocatorHeap, pb.Allocator())

	_, err = Create(rgbaInfo(10, 10), AllocatorHeap, WithRowStride(39))
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}

func TestCreateRejectsBadInfo(t *testing.T) {
	_, err := Create(rgbaInfo(0, 10), AllocatorHeap)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)

	_, err = Create(rgbaInfo(MaxDimension+1, 1), AllocatorHeap)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)

	info := rgbaInfo(4, 4)
	info.PixelFormat = FormatUnknown
	_, err = Create(info, AllocatorHeap)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)

	_, err = Create(rgbaInfo(4, 4), AllocatorKind(9))
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}

// 16384 x 11200 x 4 bytes is 700 MiB, over the 600 MiB ceiling.
func TestCreateOverCeilingFails(t *testing.T) {
	_, err := Create(rgbaInfo(16384, 11200), AllocatorHeap)
	assert.ErrorIs(t, err, imgerr.ErrAllocFailed)
}

func TestCreateReleaseDoesNotLeak(t *testing.T) {
	ca := testcommon.NewCountingAllocator()
	for _, format := range []PixelFormat{FormatRGBA8888, FormatRGB565, FormatRGBAF16, FormatNV21} {
		info := rgbaInfo(7, 5)
		info.PixelFormat = format
		pb, err := Create(info, AllocatorCustom, WithCustomAllocator(ca))
		require.NoError(t, err)
		require.NoError(t, pb.Release())
	}
	assert.Equal(t, 4, ca.Allocs)
	assert.Equal(t, 4, ca.Frees)
	assert.Equal(t, 0, ca.Outstanding())
}

func TestReleaseTwiceFreesOnce(t *testing.T) {
	ca := testcommon.NewCountingAllocator()
	pb, err := Create(rgbaInfo(4, 4), AllocatorCustom, WithCustomAllocator(ca))
	require.NoError(t, err)

	require.NoError(t, pb.Release())
	require.NoError(t, pb.Release())
	assert.Equal(t, 1, ca.Frees)
	assert.Equal(t, []int{64}, ca.FreedSizes)
	assert.True(t, pb.Released())
	assert.Nil(t, pb.Pixels())

	_, err = pb.ReadPixel(0, 0)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}

func TestCustomAllocatorRequired(t *testing.T) {
	_, err := Create(rgbaInfo(4, 4), AllocatorCustom)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)

	ca := testcommon.NewCountingAllocator()
	ca.Fail = true
	_, err = Create(rgbaInfo(4, 4), AllocatorCustom, WithCustomAllocator(ca))
	assert.ErrorIs(t, err, imgerr.ErrAllocFailed)
}

func TestStatsTrackLiveBuffers(t *testing.T) {
	before := Stats()
	pb, err := Create(rgbaInfo(8, 8), AllocatorHeap)
	require.NoError(t, err)
	during := Stats()
	assert.Equal(t, before.Buffers[AllocatorHeap]+1, during.Buffers[AllocatorHeap])
	assert.Equal(t, before.Bytes[AllocatorHeap]+256, during.Bytes[AllocatorHeap])

	require.NoError(t, pb.Release())
	after := Stats()
	assert.Equal(t, before.Buffers[AllocatorHeap], after.Buffers[AllocatorHeap])
}

func TestDmaStrideAligned(t *testing.T) {
	pb, err := Create(rgbaInfo(10, 4), AllocatorDma)
	require.NoError(t, err)
	defer pb.Release()
	assert.Equal(t, 64, pb.RowStride())
	assert.Equal(t, AllocatorDma, pb.Allocator())
	require.NoError(t, pb.WritePixel(9, 3, 0xFF112233))
	v, err := pb.ReadPixel(9, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF112233), v)
}

// fillDuringGC keeps only the pixel slice of a fresh Dma buffer and collects
// garbage while using it.
func fillDuringGC(t *testing.T) ([]byte, int64) {
	pb, err := Create(rgbaInfo(32, 32), AllocatorDma)
	require.NoError(t, err)

	var seen []byte
	var live int64
	err = pb.WithPixels(func(px []byte) error {
		for i := range px {
			px[i] = byte(i)
		}
		for i := 0; i < 5; i++ {
			runtime.GC()
		}
		live = Stats().Buffers[AllocatorDma]
		seen = append([]byte(nil), px...)
		return nil
	})
	require.NoError(t, err)
	return seen, live
}

func TestWithPixelsKeepsMappingAlive(t *testing.T) {
	seen, live := fillDuringGC(t)
	assert.GreaterOrEqual(t, live, int64(1))
	require.Len(t, seen, 32*32*4)
	for i, b := range seen {
		if b != byte(i) {
			t.Fatalf("byte %d is %d after collection", i, b)
		}
	}
}

func TestWithPixelsOnReleasedBuffer(t *testing.T) {
	pb, err := Create(rgbaInfo(2, 2), AllocatorHeap)
	require.NoError(t, err)
	require.NoError(t, pb.Release())
	err = pb.WithPixels(func(px []byte) error { return nil })
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}

func TestSharedMemoryBuffer(t *testing.T) {
	skipUnlessLinux(t)

	pb, err := Create(rgbaInfo(64, 64), AllocatorSharedMemory)
	require.NoError(t, err)
	assert.Equal(t, AllocatorSharedMemory, pb.Allocator())
	assert.GreaterOrEqual(t, pb.Fd(), 0)
	require.NoError(t, pb.Erase(0xFF00FF00))
	require.NoError(t, pb.Release())
	assert.Equal(t, -1, pb.Fd())
}

func TestClone(t *testing.T) {
	src, err := Create(rgbaInfo(3, 2), AllocatorHeap, WithRowStride(16))
	require.NoError(t, err)
	defer src.Release()
	require.NoError(t, src.WritePixel(2, 1, 0x80402010))

	ca := testcommon.NewCountingAllocator()
	clone, err := src.Clone(AllocatorCustom, WithCustomAllocator(ca))
	require.NoError(t, err)
	assert.Equal(t, AllocatorCustom, clone.Allocator())
	v, err := clone.ReadPixel(2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80402010), v)

	dma, err := src.Clone(AllocatorDma)
	require.NoError(t, err)
	assert.Equal(t, 64, dma.RowStride())
	v, err = dma.ReadPixel(2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80402010), v)

	require.NoError(t, clone.Release())
	require.NoError(t, dma.Release())
	assert.Equal(t, 0, ca.Outstanding())
}

func TestYUVStorableButNotAddressable(t *testing.T) {
	info := rgbaInfo(5, 3)
	info.PixelFormat = FormatNV12
	pb, err := Create(info, AllocatorHeap)
	require.NoError(t, err)
	defer pb.Release()

	// width rounds up to 6; 3 luma rows plus 2 chroma rows
	assert.Equal(t, 6, pb.RowStride())
	assert.Equal(t, 30, pb.ByteCount())
	_, err = pb.ReadPixel(0, 0)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
	assert.ErrorIs(t, pb.Rotate(90), imgerr.ErrInvalidParameter)
}

func TestSetEditable(t *testing.T) {
	pb, err := Create(rgbaInfo(2, 2), AllocatorHeap, WithEditable(false))
	require.NoError(t, err)
	defer pb.Release()

	assert.False(t, pb.IsEditable())
	assert.ErrorIs(t, pb.WritePixel(0, 0, 1), imgerr.ErrInvalidParameter)
	require.NoError(t, pb.SetEditable(true))
	assert.NoError(t, pb.WritePixel(0, 0, 1))
}
