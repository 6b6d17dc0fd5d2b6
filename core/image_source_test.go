package core

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/sniff"
	"github.com/kpfaulkner/pixmap-go/testcommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageSourceFromBuffer(t *testing.T) {
	is, err := CreateImageSourceFromBuffer(testcommon.RGBA10x10())
	require.NoError(t, err)
	defer is.Close()

	info, err := is.GetImageInfo()
	require.NoError(t, err)
	assert.Equal(t, 10, info.Width())
	assert.Equal(t, pixelmap.FormatRGBA8888, info.PixelFormat)

	mime, err := is.MimeType()
	require.NoError(t, err)
	assert.Equal(t, sniff.MimePixmap, mime)

	small, err := is.CreatePixelMap(options.NewDecodeOptions(&options.DecodeOptions{DesiredSize: &pixelmap.Size{Width: 5, Height: 5}}))
	require.NoError(t, err)
	defer small.Release()
	assert.Equal(t, 5, small.Width())

	full, err := is.CreatePixelMap(nil)
	require.NoError(t, err)
	defer full.Release()
	assert.Equal(t, 10, full.Width())
}

func TestImageSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.pxm")
	require.NoError(t, os.WriteFile(path, testcommon.RGBA10x10(), 0o644))

	is, err := CreateImageSourceFromFile(path)
	require.NoError(t, err)
	defer is.Close()

	pb, err := is.CreatePixelMap(nil)
	require.NoError(t, err)
	defer pb.Release()
	assert.Equal(t, testcommon.RGBA10x10()[32:], pb.Pixels())
}

func TestImageSourceMissingFile(t *testing.T) {
	_, err := CreateImageSourceFromFile(filepath.Join(t.TempDir(), "nope.pxm"))
	assert.ErrorIs(t, err, imgerr.ErrIoAbnormal)
}

func TestImageSourceTruncated(t *testing.T) {
	is, err := CreateImageSourceFromBuffer(testcommon.RGBA10x10()[:200])
	require.NoError(t, err)
	defer is.Close()

	_, err = is.GetImageInfo()
	require.NoError(t, err)
	_, err = is.CreatePixelMap(nil)
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestImageSourceShortBodyIsMalformed(t *testing.T) {
	src, err := CreateImageSourceFromBuffer(pngBytes(t), WithRegistry(shortRegistry(t, shortDecoder{headerOK: true})))
	require.NoError(t, err)
	defer src.Close()

	_, err = src.GetImageInfo()
	require.NoError(t, err)

	_, err = src.CreatePixelMap(nil)
	assert.Equal(t, imgerr.Malformed, imgerr.KindOf(err))
	assert.NotErrorIs(t, err, imgerr.ErrSourceIncomplete)
}

func TestSupportedFormats(t *testing.T) {
	formats, err := SupportedFormats()
	require.NoError(t, err)
	assert.Contains(t, formats, sniff.MimePixmap)
	assert.Contains(t, formats, sniff.MimeWEBP)
}

func TestPackerRoundTrip(t *testing.T) {
	is, err := CreateImageSourceFromBuffer(testcommon.RGBA10x10())
	require.NoError(t, err)
	defer is.Close()
	pb, err := is.CreatePixelMap(nil)
	require.NoError(t, err)
	defer pb.Release()

	pk, err := NewPacker(nil)
	require.NoError(t, err)
	assert.NotContains(t, pk.SupportedFormats(), sniff.MimeWEBP)

	var buf bytes.Buffer
	require.NoError(t, pk.Pack(&buf, pb, &options.PackOptions{Format: sniff.MimePNG}))

	back, err := CreateImageSourceFromBuffer(buf.Bytes())
	require.NoError(t, err)
	defer back.Close()
	mime, err := back.MimeType()
	require.NoError(t, err)
	assert.Equal(t, sniff.MimePNG, mime)

	err = pk.Pack(&buf, pb, &options.PackOptions{Format: sniff.MimeWEBP})
	assert.ErrorIs(t, err, imgerr.ErrUnknownFormat)
}

func TestPackToFile(t *testing.T) {
	pb, err := pixelmap.Create(pixelmap.ImageInfo{
		Size:        pixelmap.Size{Width: 4, Height: 4},
		PixelFormat: pixelmap.FormatRGBA8888,
		AlphaType:   pixelmap.AlphaUnpremul,
		ColorSpace:  pixelmap.ColorSpaceSRGB,
	}, pixelmap.AllocatorHeap)
	require.NoError(t, err)
	defer pb.Release()

	pk, err := NewPacker(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, pk.PackToFile(filepath.Join(dir, "out.pxm"), pb, nil))
	data, err := os.ReadFile(filepath.Join(dir, "out.pxm"))
	require.NoError(t, err)
	assert.Equal(t, testcommon.PixmapMagic, data[:8])
	assert.Len(t, data, 32+64)

	err = pk.PackToFile(filepath.Join(dir, "out.xyz"), pb, nil)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}
