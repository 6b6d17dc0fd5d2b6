package testcommon

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/kpfaulkner/pixmap-go/pxio"
)

// PixmapMagic starts every image/x-pixmap container.
var PixmapMagic = []byte{0x89, 0x50, 0x58, 0x4D, 0x0D, 0x0A, 0x1A, 0x0A}

const PixmapHeaderSize = 32

// PixmapSpec describes a test container. Zero Stride means width*Bpp.
type PixmapSpec struct {
	Width      int
	Height     int
	Format     byte
	Alpha      byte
	ColorSpace byte
	Bpp        int
	Stride     int
	Density    uint32
	FrameCount uint16
}

// BuildPixmap encodes an image/x-pixmap container whose pixel bytes are
// produced by fill (byte index within the body -> value). A nil fill uses the
// low byte of the index.
func BuildPixmap(ps PixmapSpec, fill func(i int) byte) []byte {
	stride := ps.Stride
	if stride == 0 {
		stride = ps.Width * ps.Bpp
	}
	if ps.FrameCount == 0 {
		ps.FrameCount = 1
	}
	body := stride * ps.Height
	out := make([]byte, PixmapHeaderSize+body)
	copy(out, PixmapMagic)
	out[8] = 1
	out[9] = ps.Format
	out[10] = ps.Alpha
	out[11] = ps.ColorSpace
	binary.LittleEndian.PutUint32(out[12:], uint32(ps.Width))
	binary.LittleEndian.PutUint32(out[16:], uint32(ps.Height))
	binary.LittleEndian.PutUint32(out[20:], uint32(stride))
	binary.LittleEndian.PutUint32(out[24:], ps.Density)
	binary.LittleEndian.PutUint16(out[28:], ps.FrameCount)
	for i := 0; i < body; i++ {
		if fill != nil {
			out[PixmapHeaderSize+i] = fill(i)
		} else {
			out[PixmapHeaderSize+i] = byte(i)
		}
	}
	return out
}

// RGBA10x10 is a 10x10 RGBA_8888 sRGB unpremultiplied pixmap with a 128 byte
// stride, 1312 bytes in total.
func RGBA10x10() []byte {
	return BuildPixmap(PixmapSpec{Width: 10, Height: 10, Format: 3, Alpha: 3, ColorSpace: 2, Bpp: 4, Stride: 128}, nil)
}

// Chunks splits data at the given sizes. Whatever is left becomes the final chunk.
func Chunks(data []byte, sizes ...int) [][]byte {
	var out [][]byte
	for _, n := range sizes {
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return append(out, data)
}

func GenerateTestSource(t *testing.T, filepath string) pxio.ByteSource {
	data, err := os.ReadFile(filepath)
	if err != nil {
		t.Errorf("error reading test image file : %v", err)
		return nil
	}
	return pxio.NewBufferSource(data)
}
