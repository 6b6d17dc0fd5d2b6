package pixelmap

import (
	"encoding/binary"
	"image/color"
	"math"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/util"
)

// loadPixel decodes one stored pixel. Values are returned as stored; no
// premultiplication is added or removed.
func loadPixel(f PixelFormat, b []byte) color.NRGBA {
	switch f {
	case FormatARGB8888:
		return color.NRGBA{R: b[1], G: b[2], B: b[3], A: b[0]}
	case FormatRGBA8888:
		return color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}
	case FormatBGRA8888:
		return color.NRGBA{R: b[2], G: b[1], B: b[0], A: b[3]}
	case FormatRGB888:
		return color.NRGBA{R: b[0], G: b[1], B: b[2], A: 0xFF}
	case FormatRGB565:
		v := binary.LittleEndian.Uint16(b)
		r := uint8(v >> 11 & 0x1F)
		g := uint8(v >> 5 & 0x3F)
		bl := uint8(v & 0x1F)
		return color.NRGBA{R: r<<3 | r>>2, G: g<<2 | g>>4, B: bl<<3 | bl>>2, A: 0xFF}
	case FormatAlpha8:
		return color.NRGBA{A: b[0]}
	case FormatRGBAF16:
		return color.NRGBA{
			R: unitToByte(halfToFloat(binary.LittleEndian.Uint16(b[0:]))),
			G: unitToByte(halfToFloat(binary.LittleEndian.Uint16(b[2:]))),
			B: unitToByte(halfToFloat(binary.LittleEndian.Uint16(b[4:]))),
			A: unitToByte(halfToFloat(binary.LittleEndian.Uint16(b[6:]))),
		}
	case FormatRGBA1010102:
		v := binary.LittleEndian.Uint32(b)
		return color.NRGBA{
			R: uint8(v >> 2 & 0xFF),
			G: uint8(v >> 12 & 0xFF),
			B: uint8(v >> 22 & 0xFF),
			A: uint8(v>>30) * 85,
		}
	}
	return color.NRGBA{}
}

func storePixel(f PixelFormat, b []byte, c color.NRGBA) {
	switch f {
	case FormatARGB8888:
		b[0], b[1], b[2], b[3] = c.A, c.R, c.G, c.B
	case FormatRGBA8888:
		b[0], b[1], b[2], b[3] = c.R, c.G, c.B, c.A
	case FormatBGRA8888:
		b[0], b[1], b[2], b[3] = c.B, c.G, c.R, c.A
	case FormatRGB888:
		b[0], b[1], b[2] = c.R, c.G, c.B
	case FormatRGB565:
		v := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
		binary.LittleEndian.PutUint16(b, v)
	case FormatAlpha8:
		b[0] = c.A
	case FormatRGBAF16:
		binary.LittleEndian.PutUint16(b[0:], floatToHalf(float32(c.R)/255))
		binary.LittleEndian.PutUint16(b[2:], floatToHalf(float32(c.G)/255))
		binary.LittleEndian.PutUint16(b[4:], floatToHalf(float32(c.B)/255))
		binary.LittleEndian.PutUint16(b[6:], floatToHalf(float32(c.A)/255))
	case FormatRGBA1010102:
		expand := func(v uint8) uint32 { return uint32(v)<<2 | uint32(v)>>6 }
		v := expand(c.R) | expand(c.G)<<10 | expand(c.B)<<20 | uint32(c.A>>6)<<30
		binary.LittleEndian.PutUint32(b, v)
	}
}

func unitToByte(v float32) uint8 {
	return uint8(util.Clamp(v*255+0.5, 0, 255))
}

// halfToFloat widens an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1F
	mantissa := uint32(h & 0x3FF)

	switch {
	case exp == 0 && mantissa == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal
		v := float32(mantissa) / 1024 / 16384
		if sign != 0 {
			return -v
		}
		return v
	case exp == 31:
		return math.Float32frombits(sign | 0x7F800000 | mantissa<<13)
	}
	exp += 127 - 15
	return math.Float32frombits(sign | exp<<23 | mantissa<<13)
}

// floatToHalf narrows to binary16, rounding to nearest and saturating to infinity.
func floatToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xFF) - 127 + 15
	mantissa := bits & 0x7FFFFF

	switch {
	case bits&0x7FFFFFFF == 0:
		return sign
	case exp >= 31:
		if bits&0x7F800000 == 0x7F800000 && mantissa != 0 {
			return sign | 0x7E00
		}
		return sign | 0x7C00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mantissa |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mantissa >> shift)
		if mantissa>>(shift-1)&1 != 0 {
			half++
		}
		return sign | half
	}
	half := sign | uint16(exp)<<10 | uint16(mantissa>>13)
	if mantissa&0x1000 != 0 {
		half++
	}
	return half
}

func premultiply(c color.NRGBA) color.NRGBA {
	if c.A == 0xFF {
		return c
	}
	a := uint32(c.A)
	return color.NRGBA{
		R: uint8((uint32(c.R)*a + 127) / 255),
		G: uint8((uint32(c.G)*a + 127) / 255),
		B: uint8((uint32(c.B)*a + 127) / 255),
		A: c.A,
	}
}

func unpremultiply(c color.NRGBA) color.NRGBA {
	if c.A == 0xFF {
		return c
	}
	if c.A == 0 {
		return color.NRGBA{}
	}
	a := uint32(c.A)
	return color.NRGBA{
		R: uint8(util.Min((uint32(c.R)*255+a/2)/a, 255)),
		G: uint8(util.Min((uint32(c.G)*255+a/2)/a, 255)),
		B: uint8(util.Min((uint32(c.B)*255+a/2)/a, 255)),
		A: c.A,
	}
}

// ARGB packs a color as 0xAARRGGBB.
func ARGB(c color.NRGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func FromARGB(v uint32) color.NRGBA {
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
}

// ConvertFormat re-encodes every pixel into format, reallocating the buffer.
// Formats without alpha make the result opaque.
func (pb *PixelBuffer) ConvertFormat(format PixelFormat) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkWritable("convert format"); err != nil {
		return err
	}
	if !format.Valid() || format.IsYUV() || pb.info.PixelFormat.IsYUV() {
		return imgerr.New(imgerr.InvalidParameter, "convert format", "cannot convert %s to %s", pb.info.PixelFormat, format)
	}
	if format == pb.info.PixelFormat {
		return nil
	}

	info := pb.info
	info.PixelFormat = format
	if !format.HasAlpha() {
		info.AlphaType = AlphaOpaque
	} else if info.AlphaType == AlphaUnknown {
		info.AlphaType = AlphaUnpremul
	}
	st, stride, err := pb.reallocate(info)
	if err != nil {
		return err
	}

	src := pb.store.bytes()
	dst := st.bytes()
	srcBpp := pb.info.PixelFormat.BytesPerPixel()
	dstBpp := format.BytesPerPixel()
	for y := 0; y < info.Height(); y++ {
		srow := src[y*pb.rowStride:]
		drow := dst[y*stride:]
		for x := 0; x < info.Width(); x++ {
			storePixel(format, drow[x*dstBpp:], loadPixel(pb.info.PixelFormat, srow[x*srcBpp:]))
		}
	}
	pb.replaceStorage(st, info, stride)
	return nil
}
