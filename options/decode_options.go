package options

import (
	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
)

// DecodeOptions are the caller's requests for a decode. The zero value of each
// field means "leave the decoded image as it is".
type DecodeOptions struct {
	// FormatHint is a MIME type. Sniffing wins when the two disagree.
	FormatHint string

	DesiredSize   *pixelmap.Size
	DesiredRegion *pixelmap.Rect

	// SampleSize subsamples by an integer factor when no DesiredSize is set.
	SampleSize int

	DesiredPixelFormat pixelmap.PixelFormat
	RotateDegrees      float64
	Editable           bool

	// Allocator for the decoded buffer; default is heap
	Allocator pixelmap.AllocatorKind

	// CustomAllocator is required when Allocator is AllocatorCustom
	CustomAllocator pixelmap.CustomAllocator

	AntiAliasing pixelmap.AntiAliasing
}

func NewDecodeOptions(options *DecodeOptions) *DecodeOptions {

	opt := &DecodeOptions{SampleSize: 1}
	if options != nil {
		*opt = *options
		if opt.SampleSize <= 0 {
			opt.SampleSize = 1
		}
	}
	return opt
}

func (o *DecodeOptions) Validate() error {
	if o.DesiredSize != nil && (o.DesiredSize.Width <= 0 || o.DesiredSize.Height <= 0) {
		return imgerr.New(imgerr.InvalidParameter, "decode options", "invalid desired size %dx%d", o.DesiredSize.Width, o.DesiredSize.Height)
	}
	if o.DesiredRegion != nil && o.DesiredRegion.Empty() {
		return imgerr.New(imgerr.InvalidParameter, "decode options", "empty desired region")
	}
	if o.SampleSize < 1 {
		return imgerr.New(imgerr.InvalidParameter, "decode options", "sample size %d below 1", o.SampleSize)
	}
	if o.DesiredPixelFormat != pixelmap.FormatUnknown && (!o.DesiredPixelFormat.Valid() || o.DesiredPixelFormat.IsYUV()) {
		return imgerr.New(imgerr.InvalidParameter, "decode options", "unsupported pixel format %s", o.DesiredPixelFormat)
	}
	if !o.Allocator.Valid() {
		return imgerr.New(imgerr.InvalidParameter, "decode options", "unknown allocator %d", int(o.Allocator))
	}
	if o.Allocator == pixelmap.AllocatorCustom && o.CustomAllocator == nil {
		return imgerr.New(imgerr.InvalidParameter, "decode options", "custom allocator not supplied")
	}
	return nil
}

// BufferOptions are the pixelmap options a decoder passes when creating its output.
func (o *DecodeOptions) BufferOptions() []pixelmap.Option {
	opts := []pixelmap.Option{pixelmap.WithEditable(true)}
	if o.CustomAllocator != nil {
		opts = append(opts, pixelmap.WithCustomAllocator(o.CustomAllocator))
	}
	return opts
}

// PackOptions select the output of an encode.
type PackOptions struct {
	// Format is the output MIME type
	Format string

	// Quality 0-100 for lossy encoders
	Quality int

	NumberHint int
}

func NewPackOptions(options *PackOptions) *PackOptions {

	opt := &PackOptions{Quality: 100, NumberHint: 1}
	if options != nil {
		opt.Format = options.Format
		if options.Quality > 0 && options.Quality <= 100 {
			opt.Quality = options.Quality
		}
		if options.NumberHint > 0 {
			opt.NumberHint = options.NumberHint
		}
	}
	return opt
}

func (o *PackOptions) Validate() error {
	if o.Format == "" {
		return imgerr.New(imgerr.InvalidParameter, "pack options", "no output format")
	}
	return nil
}
