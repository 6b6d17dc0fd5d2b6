package pixmap_go

import (
	"image"
	"image/color"
	"io"

	"github.com/kpfaulkner/pixmap-go/core"
	"github.com/kpfaulkner/pixmap-go/imgerr"
)

const pixmapHeader = "\x89\x50\x58\x4D\x0D\x0A\x1A\x0A"

func init() {
	image.RegisterFormat("pixmap", pixmapHeader, Decode, DecodeConfig)
}

func readSource(r io.Reader) (*core.ImageSource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "read", err)
	}
	return core.CreateImageSourceFromBuffer(data)
}

// Decode reads any registered format, pixmap containers included, into an NRGBA image.
func Decode(r io.Reader) (image.Image, error) {
	src, err := readSource(r)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	pb, err := src.CreatePixelMap(nil)
	if err != nil {
		return nil, err
	}
	defer pb.Release()
	return pb.ToImage()
}

func DecodeConfig(r io.Reader) (image.Config, error) {
	src, err := readSource(r)
	if err != nil {
		return image.Config{}, err
	}
	defer src.Close()

	info, err := src.GetImageInfo()
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      info.Width(),
		Height:     info.Height(),
	}, nil
}
