package codecs

import (
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"io"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/pxio"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ImageCodec adapts a Go image package to the plugin contracts. The wrapped
// decoders need the whole stream, so the body is attempted on every call and a
// truncated read on an incomplete source only means more bytes are needed.
type ImageCodec struct {
	Name         string
	Opaque       bool
	decodeConfig func(io.Reader) (image.Config, error)
	decode       func(io.Reader) (image.Image, error)
	encode       func(io.Writer, image.Image, *options.PackOptions) error
}

func (c *ImageCodec) DecodeHeader(src pxio.ByteSource) (plugin.Header, error) {
	cfg, err := c.decodeConfig(pxio.Section(src, 0))
	if err != nil {
		return plugin.Header{}, c.classify(src, "header", err)
	}
	alpha := pixelmap.AlphaUnpremul
	if c.Opaque {
		alpha = pixelmap.AlphaOpaque
	}
	return plugin.Header{
		Info: pixelmap.ImageInfo{
			Size:        pixelmap.Size{Width: cfg.Width, Height: cfg.Height},
			PixelFormat: pixelmap.FormatRGBA8888,
			AlphaType:   alpha,
			ColorSpace:  pixelmap.ColorSpaceSRGB,
			FrameCount:  1,
		},
	}, nil
}

func (c *ImageCodec) DecodeBody(src pxio.ByteSource, hdr plugin.Header, opts *options.DecodeOptions) (*pixelmap.PixelBuffer, error) {
	img, err := c.decode(pxio.Section(src, 0))
	if err != nil {
		return nil, c.classify(src, "body", err)
	}
	b := img.Bounds()
	if b.Dx() != hdr.Info.Width() || b.Dy() != hdr.Info.Height() {
		return nil, imgerr.New(imgerr.Malformed, c.Name+" body", "decoded %dx%d, header said %dx%d", b.Dx(), b.Dy(), hdr.Info.Width(), hdr.Info.Height())
	}
	pb, err := pixelmap.FromImage(img, opts.Allocator, opts.BufferOptions()...)
	if err != nil {
		return nil, err
	}
	return pb, nil
}

// classify maps a decoder error onto the error taxonomy.
func (c *ImageCodec) classify(src pxio.ByteSource, stage string, err error) error {
	op := c.Name + " " + stage
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, imgerr.ErrSourceIncomplete) {
		if !src.IsComplete() {
			return imgerr.New(imgerr.SourceIncomplete, op, "stream truncated at %d bytes", src.Size())
		}
		return imgerr.Rekind(imgerr.Malformed, op, err)
	}
	if imgerr.KindOf(err) == imgerr.IoAbnormal {
		return err
	}
	log.Errorf("%s decode failed: %v", c.Name, err)
	return imgerr.Wrap(imgerr.Malformed, op, err)
}

func (c *ImageCodec) Encode(w io.Writer, pb *pixelmap.PixelBuffer, opts *options.PackOptions) error {
	if c.encode == nil {
		return imgerr.New(imgerr.InvalidParameter, c.Name+" encode", "encoding not supported")
	}
	img, err := pb.ToImage()
	if err != nil {
		return err
	}
	if err := c.encode(w, img, opts); err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, c.Name+" encode", err)
	}
	return nil
}

func NewJPEGCodec() *ImageCodec {
	return &ImageCodec{
		Name:         "jpeg",
		Opaque:       true,
		decodeConfig: jpeg.DecodeConfig,
		decode:       jpeg.Decode,
		encode: func(w io.Writer, img image.Image, opts *options.PackOptions) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: opts.Quality})
		},
	}
}

func NewGIFCodec() *ImageCodec {
	return &ImageCodec{
		Name:         "gif",
		decodeConfig: gif.DecodeConfig,
		decode:       gif.Decode,
		encode: func(w io.Writer, img image.Image, opts *options.PackOptions) error {
			return gif.Encode(w, img, nil)
		},
	}
}

func NewBMPCodec() *ImageCodec {
	return &ImageCodec{
		Name:         "bmp",
		decodeConfig: bmp.DecodeConfig,
		decode:       bmp.Decode,
		encode: func(w io.Writer, img image.Image, opts *options.PackOptions) error {
			return bmp.Encode(w, img)
		},
	}
}

func NewTIFFCodec() *ImageCodec {
	return &ImageCodec{
		Name:         "tiff",
		decodeConfig: tiff.DecodeConfig,
		decode:       tiff.Decode,
		encode: func(w io.Writer, img image.Image, opts *options.PackOptions) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		},
	}
}

// NewWEBPCodec decodes only.
func NewWEBPCodec() *ImageCodec {
	return &ImageCodec{
		Name:         "webp",
		decodeConfig: webp.DecodeConfig,
		decode:       webp.Decode,
	}
}
