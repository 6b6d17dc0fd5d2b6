package serial

import (
	"runtime"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/pxio"
	"github.com/kpfaulkner/pixmap-go/testcommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInfo(w, h int) pixelmap.ImageInfo {
	return pixelmap.ImageInfo{
		Size:        pixelmap.Size{Width: w, Height: h},
		PixelFormat: pixelmap.FormatRGBA8888,
		AlphaType:   pixelmap.AlphaUnpremul,
		ColorSpace:  pixelmap.ColorSpaceDisplayP3,
		BaseDensity: 160,
		FrameCount:  1,
	}
}

func filled(t *testing.T, w, h int, kind pixelmap.AllocatorKind, opts ...pixelmap.Option) *pixelmap.PixelBuffer {
	pb, err := pixelmap.Create(testInfo(w, h), kind, opts...)
	require.NoError(t, err)
	px := pb.Pixels()
	for i := range px {
		px[i] = byte(i * 7)
	}
	return pb
}

// rows returns the visible bytes of every row, ignoring stride padding.
func rows(pb *pixelmap.PixelBuffer) [][]byte {
	rowBytes := pb.Info().MinRowStride()
	var out [][]byte
	for y := 0; y < pb.Height(); y++ {
		out = append(out, pb.Pixels()[y*pb.RowStride():y*pb.RowStride()+rowBytes])
	}
	return out
}

func TestTLVRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		kind  pixelmap.AllocatorKind
		opts  []pixelmap.Option
		linux bool
	}{
		{kind: pixelmap.AllocatorHeap},
		{kind: pixelmap.AllocatorHeap, opts: []pixelmap.Option{pixelmap.WithRowStride(48)}},
		{kind: pixelmap.AllocatorDma},
		{kind: pixelmap.AllocatorCustom, opts: []pixelmap.Option{pixelmap.WithCustomAllocator(testcommon.NewCountingAllocator())}},
		{kind: pixelmap.AllocatorSharedMemory, linux: true},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			if tc.linux && runtime.GOOS != "linux" {
				t.Skip("shared memory needs linux")
			}
			pb := filled(t, 10, 6, tc.kind, tc.opts...)
			defer pb.Release()

			data, err := EncodeTLV(pb)
			require.NoError(t, err)
			assert.Equal(t, TagEnd, data[len(data)-1])

			back, err := DecodeTLV(data)
			require.NoError(t, err)
			defer back.Release()

			assert.Equal(t, pixelmap.AllocatorHeap, back.Allocator())
			assert.Equal(t, pb.Width(), back.Width())
			assert.Equal(t, pb.Height(), back.Height())
			assert.Equal(t, pb.PixelFormat(), back.PixelFormat())
			assert.Equal(t, pb.AlphaType(), back.AlphaType())
			assert.Equal(t, pb.ColorSpace(), back.ColorSpace())
			assert.Equal(t, 160, back.Info().BaseDensity)
			assert.Equal(t, rows(pb), rows(back))
		})
	}
}

func TestTLVSharedMemoryRecordedAsHeap(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared memory needs linux")
	}
	pb := filled(t, 2, 2, pixelmap.AllocatorSharedMemory)
	defer pb.Release()

	data, err := EncodeTLV(pb)
	require.NoError(t, err)
	// width, height, format, colour space, alpha, density, then allocator
	c := pxio.NewCursor(data)
	for i := 0; i < 6; i++ {
		_, err := c.ReadU8()
		require.NoError(t, err)
		n, err := c.ReadVarint()
		require.NoError(t, err)
		require.NoError(t, c.Skip(int(n)))
	}
	tag, _ := c.ReadU8()
	assert.Equal(t, TagAllocatorType, tag)
	_, _ = c.ReadVarint()
	v, _ := c.ReadVarint()
	assert.Equal(t, uint32(pixelmap.AllocatorHeap), v)
}

func header(w *pxio.Writer) {
	putAttr(w, TagWidth, 2)
	putAttr(w, TagHeight, 2)
	putAttr(w, TagPixelFormat, int(pixelmap.FormatRGBA8888))
}

func TestTLVDataLengthPastEnd(t *testing.T) {
	w := pxio.NewWriter(64)
	header(w)
	w.PutU8(TagPixelData)
	w.PutVarint(1000)
	w.PutBytes(make([]byte, 10))

	_, err := DecodeTLV(w.Bytes())
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestTLVRejects(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(w *pxio.Writer)
	}{
		{"no data", func(w *pxio.Writer) { header(w); w.PutU8(TagEnd) }},
		{"zero length", func(w *pxio.Writer) { header(w); w.PutU8(TagPixelData); w.PutVarint(0) }},
		{"short data", func(w *pxio.Writer) {
			header(w)
			w.PutU8(TagPixelData)
			w.PutVarint(8)
			w.PutBytes(make([]byte, 8))
		}},
		{"no width", func(w *pxio.Writer) {
			putAttr(w, TagHeight, 1)
			putAttr(w, TagPixelFormat, int(pixelmap.FormatAlpha8))
			w.PutU8(TagPixelData)
			w.PutVarint(1)
			w.PutU8(0)
		}},
		{"bad format", func(w *pxio.Writer) {
			putAttr(w, TagWidth, 1)
			putAttr(w, TagHeight, 1)
			putAttr(w, TagPixelFormat, 77)
			w.PutU8(TagPixelData)
			w.PutVarint(1)
			w.PutU8(0)
		}},
		{"endless varint", func(w *pxio.Writer) { w.PutU8(TagWidth); w.PutBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := pxio.NewWriter(64)
			tc.build(w)
			_, err := DecodeTLV(w.Bytes())
			assert.ErrorIs(t, err, imgerr.ErrMalformed)
		})
	}
}

func TestTLVSkipsUnknownTags(t *testing.T) {
	w := pxio.NewWriter(64)
	w.PutU8(0x42)
	w.PutVarint(3)
	w.PutBytes([]byte{1, 2, 3})
	putAttr(w, TagWidth, 1)
	putAttr(w, TagHeight, 1)
	putAttr(w, TagPixelFormat, int(pixelmap.FormatAlpha8))
	w.PutU8(TagPixelData)
	w.PutVarint(1)
	w.PutU8(0x99)
	w.PutU8(TagEnd)

	pb, err := DecodeTLV(w.Bytes())
	require.NoError(t, err)
	defer pb.Release()
	assert.Equal(t, []byte{0x99}, pb.Pixels())
	assert.True(t, pb.IsEditable())
}

func TestTLVEncodeReleased(t *testing.T) {
	pb := filled(t, 2, 2, pixelmap.AllocatorHeap)
	require.NoError(t, pb.Release())
	_, err := EncodeTLV(pb)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}
