package core

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/sniff"
	log "github.com/sirupsen/logrus"
)

var extensionFormats = map[string]string{
	".pxm":  sniff.MimePixmap,
	".png":  sniff.MimePNG,
	".jpg":  sniff.MimeJPEG,
	".jpeg": sniff.MimeJPEG,
	".gif":  sniff.MimeGIF,
	".bmp":  sniff.MimeBMP,
	".tif":  sniff.MimeTIFF,
	".tiff": sniff.MimeTIFF,
	".webp": sniff.MimeWEBP,
}

// FormatForPath guesses a MIME type from a file extension.
func FormatForPath(path string) (string, bool) {
	mime, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return mime, ok
}

// Packer encodes PixelBuffers with the best encoder for the requested format.
type Packer struct {
	registry *plugin.Registry
}

// NewPacker uses the default registry when reg is nil.
func NewPacker(reg *plugin.Registry) (*Packer, error) {
	if reg == nil {
		var err error
		if reg, err = DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	return &Packer{registry: reg}, nil
}

func (pk *Packer) Pack(w io.Writer, pb *pixelmap.PixelBuffer, opts *options.PackOptions) error {
	if pb == nil || pb.Released() {
		return imgerr.New(imgerr.InvalidParameter, "pack", "no pixel buffer")
	}
	opts = options.NewPackOptions(opts)
	if err := opts.Validate(); err != nil {
		return err
	}
	id, err := pk.registry.MatchBest(opts.Format, "", plugin.OpEncode)
	if err != nil {
		return err
	}
	enc, err := pk.registry.Encoder(id)
	if err != nil {
		return err
	}
	log.Debugf("packing %dx%d %s as %s with %s", pb.Width(), pb.Height(), pb.PixelFormat(), opts.Format, id)
	return enc.Encode(w, pb, opts)
}

// PackToFile writes pb to path. An empty opts.Format is taken from the extension.
func (pk *Packer) PackToFile(path string, pb *pixelmap.PixelBuffer, opts *options.PackOptions) error {
	opts = options.NewPackOptions(opts)
	if opts.Format == "" {
		mime, ok := FormatForPath(path)
		if !ok {
			return imgerr.New(imgerr.InvalidParameter, "pack", "cannot tell format of %s", path)
		}
		opts.Format = mime
	}

	f, err := os.Create(path)
	if err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "pack", err)
	}
	bw := bufio.NewWriter(f)
	if err = pk.Pack(bw, pb, opts); err == nil {
		if ferr := bw.Flush(); ferr != nil {
			err = imgerr.Wrap(imgerr.IoAbnormal, "pack", ferr)
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = imgerr.Wrap(imgerr.IoAbnormal, "pack", cerr)
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

// SupportedFormats lists the MIME types the packer can encode.
func (pk *Packer) SupportedFormats() []string {
	return pk.registry.MimeTypes(plugin.OpEncode)
}
