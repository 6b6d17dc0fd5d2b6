package pixelmap

import (
	"image"
	"image/color"
	"runtime"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"golang.org/x/image/draw"
)

// ToImage copies the pixels into a Go image. Premultiplied data is converted
// to straight alpha.
func (pb *PixelBuffer) ToImage() (*image.NRGBA, error) {
	defer runtime.KeepAlive(pb)
	if err := pb.checkAddressable("to image"); err != nil {
		return nil, err
	}
	return pb.toNRGBA(), nil
}

func (pb *PixelBuffer) toNRGBA() *image.NRGBA {
	w, h := pb.Width(), pb.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	bpp := pb.info.PixelFormat.BytesPerPixel()
	premul := pb.info.AlphaType == AlphaPremul
	buf := pb.store.bytes()
	for y := 0; y < h; y++ {
		row := buf[y*pb.rowStride:]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			c := loadPixel(pb.info.PixelFormat, row[x*bpp:])
			if premul {
				c = unpremultiply(c)
			}
			o := out[x*4:]
			o[0], o[1], o[2], o[3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}

// storeNRGBA encodes img into dst using info's format and alpha type.
func storeNRGBA(dst []byte, stride int, info ImageInfo, img *image.NRGBA) {
	bpp := info.PixelFormat.BytesPerPixel()
	premul := info.AlphaType == AlphaPremul
	b := img.Bounds()
	for y := 0; y < info.Height() && y < b.Dy(); y++ {
		row := dst[y*stride:]
		in := img.Pix[y*img.Stride:]
		for x := 0; x < info.Width() && x < b.Dx(); x++ {
			i := in[x*4:]
			c := color.NRGBA{R: i[0], G: i[1], B: i[2], A: i[3]}
			if premul {
				c = premultiply(c)
			}
			storePixel(info.PixelFormat, row[x*bpp:], c)
		}
	}
}

// FromImage copies any Go image into a new RGBA_8888 buffer.
func FromImage(img image.Image, kind AllocatorKind, opts ...Option) (*PixelBuffer, error) {
	if img == nil {
		return nil, imgerr.New(imgerr.InvalidParameter, "from image", "nil image")
	}
	b := img.Bounds()
	alpha := AlphaUnpremul
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		alpha = AlphaOpaque
	}
	info := ImageInfo{
		Size:        Size{Width: b.Dx(), Height: b.Dy()},
		PixelFormat: FormatRGBA8888,
		AlphaType:   alpha,
		ColorSpace:  ColorSpaceSRGB,
		FrameCount:  1,
	}
	pb, err := Create(info, kind, opts...)
	if err != nil {
		return nil, err
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	storeNRGBA(pb.store.bytes(), pb.rowStride, info, nrgba)
	return pb, nil
}
