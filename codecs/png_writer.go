package codecs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"io"

	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// PNGCodec wraps the decode side of ImageCodec and writes its own chunks so
// the colour space of the buffer is carried into an sRGB chunk.
type PNGCodec struct {
	*ImageCodec
}

// NewPNGCodec decodes with image/png and encodes with WritePNG.
func NewPNGCodec() PNGCodec {
	return PNGCodec{&ImageCodec{
		Name:         "png",
		decodeConfig: png.DecodeConfig,
		decode:       png.Decode,
	}}
}

func (c PNGCodec) Encode(w io.Writer, pb *pixelmap.PixelBuffer, opts *options.PackOptions) error {
	img, err := pb.ToImage()
	if err != nil {
		return err
	}
	return WritePNG(img, pb.ColorSpace(), pb.AlphaType() != pixelmap.AlphaOpaque, w)
}

// WritePNG writes an 8 bit RGB or RGBA PNG. Opaque images drop the alpha channel.
func WritePNG(img *image.NRGBA, cs pixelmap.ColorSpace, withAlpha bool, output io.Writer) error {
	if _, err := output.Write(pngSignature); err != nil {
		return err
	}
	if err := writeIHDR(img, withAlpha, output); err != nil {
		return err
	}
	if cs == pixelmap.ColorSpaceSRGB {
		// rendering intent 0, perceptual
		if err := writeChunk(output, "sRGB", []byte{0x00}); err != nil {
			return err
		}
	}
	if err := writeIDAT(img, withAlpha, output); err != nil {
		return err
	}
	return writeChunk(output, "IEND", nil)
}

func writeIHDR(img *image.NRGBA, withAlpha bool, output io.Writer) error {
	colourMode := byte(2)
	if withAlpha {
		colourMode = 6
	}
	b := img.Bounds()
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(b.Dx()))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(b.Dy()))
	ihdr[8] = 8
	ihdr[9] = colourMode
	return writeChunk(output, "IHDR", ihdr)
}

func writeIDAT(img *image.NRGBA, withAlpha bool, output io.Writer) error {
	var compressed bytes.Buffer
	w, err := zlib.NewWriterLevel(&compressed, zlib.DefaultCompression)
	if err != nil {
		return err
	}

	b := img.Bounds()
	channels := 3
	if withAlpha {
		channels = 4
	}
	row := make([]byte, 1+b.Dx()*channels)
	for y := 0; y < b.Dy(); y++ {
		// filter type 0
		row[0] = 0
		src := img.Pix[y*img.Stride:]
		if withAlpha {
			copy(row[1:], src[:b.Dx()*4])
		} else {
			for x := 0; x < b.Dx(); x++ {
				copy(row[1+x*3:4+x*3], src[x*4:x*4+3])
			}
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return writeChunk(output, "IDAT", compressed.Bytes())
}

// writeChunk emits length, type, data and the CRC over type and data.
func writeChunk(output io.Writer, kind string, data []byte) error {
	buf := make([]byte, 8+len(data)+4)
	binary.BigEndian.PutUint32(buf[0:], uint32(len(data)))
	copy(buf[4:8], kind)
	copy(buf[8:], data)
	checksum := crc32.ChecksumIEEE(buf[4 : 8+len(data)])
	binary.BigEndian.PutUint32(buf[8+len(data):], checksum)
	_, err := output.Write(buf)
	return err
}
