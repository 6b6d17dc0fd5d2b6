package codecs

import (
	"bytes"
	"io"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/pxio"
	log "github.com/sirupsen/logrus"
)

const (
	PixmapHeaderSize = 32
	pixmapVersion    = 1
)

var PixmapMagic = []byte{0x89, 0x50, 0x58, 0x4D, 0x0D, 0x0A, 0x1A, 0x0A}

// PixmapCodec reads and writes image/x-pixmap: a fixed 32 byte little-endian
// header followed by stride*height raw pixel bytes in the declared format.
//
//	0  magic[8]
//	8  version u8, format u8, alpha u8, colour space u8
//	12 width u32, height u32, row stride u32, density u32
//	28 frame count u16, reserved u16
type PixmapCodec struct{}

func (PixmapCodec) DecodeHeader(src pxio.ByteSource) (plugin.Header, error) {
	if err := pxio.Need(src, 0, PixmapHeaderSize); err != nil {
		return plugin.Header{}, err
	}
	raw := make([]byte, PixmapHeaderSize)
	if _, err := src.ReadAt(raw, 0); err != nil && err != io.EOF {
		return plugin.Header{}, imgerr.Wrap(imgerr.IoAbnormal, "pixmap header", err)
	}
	info, stride, err := ParsePixmapHeader(raw)
	if err != nil {
		return plugin.Header{}, err
	}
	return plugin.Header{
		Info:       info,
		BodyOffset: PixmapHeaderSize,
		BodySize:   info.ByteCountFor(stride),
		RowStride:  stride,
	}, nil
}

// ParsePixmapHeader validates a 32 byte header and returns the image info and row stride.
func ParsePixmapHeader(raw []byte) (pixelmap.ImageInfo, int, error) {
	c := pxio.NewCursor(raw)
	magic, err := c.ReadBytes(len(PixmapMagic))
	if err != nil {
		return pixelmap.ImageInfo{}, 0, err
	}
	if !bytes.Equal(magic, PixmapMagic) {
		return pixelmap.ImageInfo{}, 0, imgerr.New(imgerr.Malformed, "pixmap header", "bad signature % x", magic)
	}

	var fields [4]uint8
	for i := range fields {
		if fields[i], err = c.ReadU8(); err != nil {
			return pixelmap.ImageInfo{}, 0, err
		}
	}
	var dims [4]uint32
	for i := range dims {
		if dims[i], err = c.ReadU32(); err != nil {
			return pixelmap.ImageInfo{}, 0, err
		}
	}
	frames, err := c.ReadU16()
	if err != nil {
		return pixelmap.ImageInfo{}, 0, err
	}

	version := fields[0]
	if version != pixmapVersion {
		return pixelmap.ImageInfo{}, 0, imgerr.New(imgerr.Malformed, "pixmap header", "unsupported version %d", version)
	}
	info := pixelmap.ImageInfo{
		Size:        pixelmap.Size{Width: int(dims[0]), Height: int(dims[1])},
		PixelFormat: pixelmap.PixelFormat(fields[1]),
		AlphaType:   pixelmap.AlphaType(fields[2]),
		ColorSpace:  pixelmap.ColorSpace(fields[3]),
		BaseDensity: int(dims[3]),
		FrameCount:  int(frames),
	}
	stride := int(dims[2])

	switch {
	case !info.PixelFormat.Valid():
		return info, 0, imgerr.New(imgerr.Malformed, "pixmap header", "unknown pixel format %d", fields[1])
	case !info.ColorSpace.Valid():
		return info, 0, imgerr.New(imgerr.Malformed, "pixmap header", "unknown colour space %d", fields[3])
	case info.Width() <= 0 || info.Height() <= 0 || info.Width() > pixelmap.MaxDimension || info.Height() > pixelmap.MaxDimension:
		return info, 0, imgerr.New(imgerr.Malformed, "pixmap header", "invalid size %dx%d", info.Width(), info.Height())
	case stride < info.MinRowStride():
		return info, 0, imgerr.New(imgerr.Malformed, "pixmap header", "row stride %d below %d", stride, info.MinRowStride())
	}
	if info.FrameCount == 0 {
		info.FrameCount = 1
	}
	return info, stride, nil
}

func (PixmapCodec) DecodeBody(src pxio.ByteSource, hdr plugin.Header, opts *options.DecodeOptions) (*pixelmap.PixelBuffer, error) {
	if err := pxio.Need(src, hdr.BodyOffset, hdr.BodySize); err != nil {
		return nil, err
	}
	stride := hdr.RowStride
	pb, err := pixelmap.Create(hdr.Info, opts.Allocator, append(opts.BufferOptions(), pixelmap.WithRowStride(stride))...)
	if err != nil {
		return nil, err
	}

	dst := pb.Pixels()
	if pb.RowStride() == stride {
		_, err = src.ReadAt(dst, hdr.BodyOffset)
	} else {
		// the allocator widened the stride
		rowBytes := hdr.Info.MinRowStride()
		for y := 0; y < hdr.Info.PlaneRows() && err == nil; y++ {
			d := y * pb.RowStride()
			_, err = src.ReadAt(dst[d:d+rowBytes], hdr.BodyOffset+int64(y*stride))
		}
	}
	if err != nil && err != io.EOF {
		pb.Release()
		log.Errorf("reading pixmap body: %v", err)
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "pixmap body", err)
	}
	return pb, nil
}

// EncodePixmapHeader builds the 32 byte header for info with the given row stride.
func EncodePixmapHeader(info pixelmap.ImageInfo, stride int) []byte {
	w := pxio.NewWriter(PixmapHeaderSize)
	w.PutBytes(PixmapMagic)
	w.PutU8(pixmapVersion)
	w.PutU8(uint8(info.PixelFormat))
	w.PutU8(uint8(info.AlphaType))
	w.PutU8(uint8(info.ColorSpace))
	w.PutU32(uint32(info.Width()))
	w.PutU32(uint32(info.Height()))
	w.PutU32(uint32(stride))
	w.PutU32(uint32(info.BaseDensity))
	w.PutU16(uint16(info.FrameCount))
	w.PutU16(0)
	return w.Bytes()
}

// Encode writes the buffer as stored, keeping its row stride.
func (PixmapCodec) Encode(w io.Writer, pb *pixelmap.PixelBuffer, opts *options.PackOptions) error {
	if pb.Released() {
		return imgerr.New(imgerr.InvalidParameter, "pixmap encode", "buffer has been released")
	}
	if _, err := w.Write(EncodePixmapHeader(pb.Info(), pb.RowStride())); err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "pixmap encode", err)
	}
	return pb.WithPixels(func(px []byte) error {
		if _, err := w.Write(px); err != nil {
			return imgerr.Wrap(imgerr.IoAbnormal, "pixmap encode", err)
		}
		return nil
	})
}
