package pixelmap

import (
	"fmt"
	"math"
)

const (
	// MaxByteCount is the hard ceiling on a single buffer (600 MiB).
	MaxByteCount = 600 * 1024 * 1024

	// MaxDimension bounds width and height.
	MaxDimension = math.MaxInt32 >> 2
)

// PixelFormat values are stable; they are written to TLV, parcel and pixmap headers.
type PixelFormat int

const (
	FormatUnknown     PixelFormat = 0
	FormatARGB8888    PixelFormat = 1
	FormatRGB565      PixelFormat = 2
	FormatRGBA8888    PixelFormat = 3
	FormatBGRA8888    PixelFormat = 4
	FormatRGB888      PixelFormat = 5
	FormatAlpha8      PixelFormat = 6
	FormatRGBAF16     PixelFormat = 7
	FormatNV21        PixelFormat = 8
	FormatNV12        PixelFormat = 9
	FormatRGBA1010102 PixelFormat = 10
	FormatYCbCrP010   PixelFormat = 11
	FormatYCrCbP010   PixelFormat = 12
)

var pixelFormatNames = map[PixelFormat]string{
	FormatUnknown:     "UNKNOWN",
	FormatARGB8888:    "ARGB_8888",
	FormatRGB565:      "RGB_565",
	FormatRGBA8888:    "RGBA_8888",
	FormatBGRA8888:    "BGRA_8888",
	FormatRGB888:      "RGB_888",
	FormatAlpha8:      "ALPHA_8",
	FormatRGBAF16:     "RGBA_F16",
	FormatNV21:        "NV21",
	FormatNV12:        "NV12",
	FormatRGBA1010102: "RGBA_1010102",
	FormatYCbCrP010:   "YCBCR_P010",
	FormatYCrCbP010:   "YCRCB_P010",
}

func (f PixelFormat) String() string {
	if n, ok := pixelFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

func (f PixelFormat) Valid() bool {
	_, ok := pixelFormatNames[f]
	return ok && f != FormatUnknown
}

// IsYUV reports the planar formats. They can be stored and serialized but not
// addressed per pixel.
func (f PixelFormat) IsYUV() bool {
	switch f {
	case FormatNV21, FormatNV12, FormatYCbCrP010, FormatYCrCbP010:
		return true
	}
	return false
}

// BytesPerPixel for packed formats. For YUV formats it is the size of one luma sample.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatARGB8888, FormatRGBA8888, FormatBGRA8888, FormatRGBA1010102:
		return 4
	case FormatRGB565:
		return 2
	case FormatRGB888:
		return 3
	case FormatAlpha8:
		return 1
	case FormatRGBAF16:
		return 8
	case FormatNV21, FormatNV12:
		return 1
	case FormatYCbCrP010, FormatYCrCbP010:
		return 2
	}
	return 0
}

// HasAlpha is false for formats that cannot carry transparency.
func (f PixelFormat) HasAlpha() bool {
	switch f {
	case FormatRGB565, FormatRGB888:
		return false
	}
	return !f.IsYUV()
}

func ParsePixelFormat(s string) (PixelFormat, bool) {
	for k, v := range pixelFormatNames {
		if v == s {
			return k, true
		}
	}
	return FormatUnknown, false
}

type AlphaType int

const (
	AlphaUnknown  AlphaType = 0
	AlphaOpaque   AlphaType = 1
	AlphaPremul   AlphaType = 2
	AlphaUnpremul AlphaType = 3
)

func (a AlphaType) String() string {
	switch a {
	case AlphaOpaque:
		return "OPAQUE"
	case AlphaPremul:
		return "PREMUL"
	case AlphaUnpremul:
		return "UNPREMUL"
	}
	return "UNKNOWN"
}

type ColorSpace int

const (
	ColorSpaceUnknown            ColorSpace = 0
	ColorSpaceDisplayP3          ColorSpace = 1
	ColorSpaceSRGB               ColorSpace = 2
	ColorSpaceLinearSRGB         ColorSpace = 3
	ColorSpaceExtendedSRGB       ColorSpace = 4
	ColorSpaceLinearExtendedSRGB ColorSpace = 5
	ColorSpaceGenericXYZ         ColorSpace = 6
	ColorSpaceGenericLab         ColorSpace = 7
	ColorSpaceACES               ColorSpace = 8
	ColorSpaceACESCG             ColorSpace = 9
	ColorSpaceAdobeRGB1998       ColorSpace = 10
	ColorSpaceDCIP3              ColorSpace = 11
	ColorSpaceITU709             ColorSpace = 12
	ColorSpaceITU2020            ColorSpace = 13
	ColorSpaceROMMRGB            ColorSpace = 14
	ColorSpaceNTSC1953           ColorSpace = 15
	ColorSpaceSMPTEC             ColorSpace = 16
)

var colorSpaceNames = []string{
	"UNKNOWN",
	"DISPLAY_P3",
	"SRGB",
	"LINEAR_SRGB",
	"EXTENDED_SRGB",
	"LINEAR_EXTENDED_SRGB",
	"GENERIC_XYZ",
	"GENERIC_LAB",
	"ACES",
	"ACES_CG",
	"ADOBE_RGB_1998",
	"DCI_P3",
	"ITU_709",
	"ITU_2020",
	"ROMM_RGB",
	"NTSC_1953",
	"SMPTE_C",
}

func (c ColorSpace) String() string {
	if c >= 0 && int(c) < len(colorSpaceNames) {
		return colorSpaceNames[c]
	}
	return fmt.Sprintf("ColorSpace(%d)", int(c))
}

func (c ColorSpace) Valid() bool {
	return c >= 0 && int(c) < len(colorSpaceNames)
}

// ParseColorSpace is the inverse of String.
func ParseColorSpace(name string) (ColorSpace, bool) {
	for i, n := range colorSpaceNames {
		if n == name {
			return ColorSpace(i), true
		}
	}
	return ColorSpaceUnknown, false
}

// AllocatorKind selects how a buffer's memory is obtained and released. The
// values are part of the TLV and parcel wire formats and must not be renumbered.
type AllocatorKind int

const (
	AllocatorDefault      AllocatorKind = 0
	AllocatorHeap         AllocatorKind = 1
	AllocatorSharedMemory AllocatorKind = 2
	AllocatorCustom       AllocatorKind = 3
	AllocatorDma          AllocatorKind = 4

	numAllocatorKinds = 5
)

func (k AllocatorKind) String() string {
	switch k {
	case AllocatorDefault:
		return "DEFAULT"
	case AllocatorHeap:
		return "HEAP"
	case AllocatorSharedMemory:
		return "SHARED_MEMORY"
	case AllocatorCustom:
		return "CUSTOM"
	case AllocatorDma:
		return "DMA"
	}
	return fmt.Sprintf("AllocatorKind(%d)", int(k))
}

func (k AllocatorKind) Valid() bool {
	return k >= AllocatorDefault && k < numAllocatorKinds
}

type Size struct {
	Width  int
	Height int
}

type Position struct {
	X int
	Y int
}

// Rect is a region in pixel coordinates.
type Rect struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether r lies entirely inside a width x height image.
func (r Rect) Within(width int, height int) bool {
	return !r.Empty() && r.Left >= 0 && r.Top >= 0 &&
		r.Left+r.Width <= width && r.Top+r.Height <= height
}

// ImageInfo describes the pixels of a buffer. It is fixed once a header has been parsed.
type ImageInfo struct {
	Size        Size
	PixelFormat PixelFormat
	AlphaType   AlphaType
	ColorSpace  ColorSpace
	BaseDensity int
	FrameCount  int
}

func (i ImageInfo) Width() int {
	return i.Size.Width
}

func (i ImageInfo) Height() int {
	return i.Size.Height
}

// MinRowStride is the tightest row stride for the format. YUV rows are rounded
// up to an even number of samples so the interleaved chroma rows fit the same stride.
func (i ImageInfo) MinRowStride() int {
	if i.PixelFormat.IsYUV() {
		return 2 * ((i.Size.Width + 1) / 2) * i.PixelFormat.BytesPerPixel()
	}
	return i.Size.Width * i.PixelFormat.BytesPerPixel()
}

// PlaneRows is the number of stride spaced rows in the buffer. YUV formats add
// an interleaved chroma plane of half height.
func (i ImageInfo) PlaneRows() int {
	if i.PixelFormat.IsYUV() {
		return i.Size.Height + (i.Size.Height+1)/2
	}
	return i.Size.Height
}

// ByteCountFor returns the bytes needed for the image with the given stride.
func (i ImageInfo) ByteCountFor(rowStride int) int64 {
	return int64(rowStride) * int64(i.PlaneRows())
}
