package codecs

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/pxio"
	"github.com/kpfaulkner/pixmap-go/sniff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 20), B: 0x80, A: 0xFF})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPNGDecode(t *testing.T) {
	data := encodePNG(t, gradient(6, 4))
	c := NewPNGCodec()
	src := pxio.NewBufferSource(data)

	hdr, err := c.DecodeHeader(src)
	require.NoError(t, err)
	assert.Equal(t, 6, hdr.Info.Width())
	assert.Equal(t, 4, hdr.Info.Height())

	pb, err := c.DecodeBody(src, hdr, options.NewDecodeOptions(nil))
	require.NoError(t, err)
	defer pb.Release()

	px, err := pb.ReadPixel(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF283C80), px)
}

func TestPNGIncremental(t *testing.T) {
	data := encodePNG(t, gradient(6, 4))
	c := NewPNGCodec()
	src := pxio.NewIncrementalSource()
	require.NoError(t, src.Append(data[:10]))

	_, err := c.DecodeHeader(src)
	assert.ErrorIs(t, err, imgerr.ErrSourceIncomplete)

	require.NoError(t, src.Append(data[10:40]))
	hdr, err := c.DecodeHeader(src)
	require.NoError(t, err)

	_, err = c.DecodeBody(src, hdr, options.NewDecodeOptions(nil))
	assert.ErrorIs(t, err, imgerr.ErrSourceIncomplete)

	require.NoError(t, src.MarkComplete())
	_, err = c.DecodeBody(src, hdr, options.NewDecodeOptions(nil))
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestWritePNGRoundTrip(t *testing.T) {
	pb, err := pixelmap.FromImage(gradient(5, 3), pixelmap.AllocatorHeap)
	require.NoError(t, err)
	defer pb.Release()

	var buf bytes.Buffer
	require.NoError(t, NewPNGCodec().Encode(&buf, pb, options.NewPackOptions(nil)))
	assert.Equal(t, pngSignature, buf.Bytes()[:8])

	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	r, g, b, a := img.At(4, 2).RGBA()
	assert.Equal(t, []uint32{80, 40, 0x80, 0xFF}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
	// opaque source drops the alpha channel
	_, isRGBA := img.(*image.RGBA)
	assert.True(t, isRGBA)
}

func TestJPEGIsOpaque(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(8, 8), &jpeg.Options{Quality: 90}))
	c := NewJPEGCodec()
	src := pxio.NewBufferSource(buf.Bytes())

	hdr, err := c.DecodeHeader(src)
	require.NoError(t, err)
	assert.Equal(t, pixelmap.AlphaOpaque, hdr.Info.AlphaType)

	pb, err := c.DecodeBody(src, hdr, options.NewDecodeOptions(nil))
	require.NoError(t, err)
	defer pb.Release()
	assert.Equal(t, pixelmap.AlphaOpaque, pb.AlphaType())
}

func TestGarbageIsMalformed(t *testing.T) {
	src := pxio.NewBufferSource([]byte("\x89PNG\r\n\x1a\nnot really a png"))
	_, err := NewPNGCodec().DecodeHeader(src)
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestWEBPDoesNotEncode(t *testing.T) {
	pb, err := pixelmap.FromImage(gradient(2, 2), pixelmap.AllocatorHeap)
	require.NoError(t, err)
	defer pb.Release()

	err = NewWEBPCodec().Encode(&bytes.Buffer{}, pb, options.NewPackOptions(nil))
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}

func TestRegisterBuiltins(t *testing.T) {
	reg := plugin.NewRegistry()
	require.NoError(t, Register(reg, nil))

	for mime, want := range map[string]string{
		sniff.MimePixmap: "pixmap",
		sniff.MimePNG:    "png",
		sniff.MimeJPEG:   "jpeg",
		sniff.MimeWEBP:   "webp",
	} {
		id, err := reg.MatchBest("", mime, plugin.OpDecode)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	_, err := reg.MatchBest("", sniff.MimeWEBP, plugin.OpEncode)
	assert.ErrorIs(t, err, imgerr.ErrUnknownFormat)

	// with no format at all the highest priority plugin wins
	id, err := reg.MatchBest("", "", plugin.OpDecode)
	require.NoError(t, err)
	assert.Equal(t, "pixmap", id)
}
