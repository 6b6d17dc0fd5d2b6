package core

import (
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/util"
)

// applyDecodeOptions runs the caller's requested adjustments on a freshly
// decoded buffer: region crop, resize or subsample, rotation, pixel format and
// finally editability. On error the buffer is released.
func applyDecodeOptions(pb *pixelmap.PixelBuffer, opts *options.DecodeOptions) (*pixelmap.PixelBuffer, error) {
	err := adjust(pb, opts)
	if err != nil {
		pb.Release()
		return nil, err
	}
	return pb, nil
}

func adjust(pb *pixelmap.PixelBuffer, opts *options.DecodeOptions) error {
	if opts.DesiredRegion != nil {
		if err := pb.Crop(*opts.DesiredRegion); err != nil {
			return err
		}
	}

	switch {
	case opts.DesiredSize != nil:
		if opts.DesiredSize.Width != pb.Width() || opts.DesiredSize.Height != pb.Height() {
			if err := pb.Resize(opts.DesiredSize.Width, opts.DesiredSize.Height, opts.AntiAliasing); err != nil {
				return err
			}
		}
	case opts.SampleSize > 1:
		w := util.CeilDiv(pb.Width(), opts.SampleSize)
		h := util.CeilDiv(pb.Height(), opts.SampleSize)
		if err := pb.Resize(w, h, pixelmap.AntiAliasingNone); err != nil {
			return err
		}
	}

	if opts.RotateDegrees != 0 {
		if err := pb.Rotate(opts.RotateDegrees); err != nil {
			return err
		}
	}

	if opts.DesiredPixelFormat != pixelmap.FormatUnknown && opts.DesiredPixelFormat != pb.PixelFormat() {
		if err := pb.ConvertFormat(opts.DesiredPixelFormat); err != nil {
			return err
		}
	}
	return pb.SetEditable(opts.Editable)
}
