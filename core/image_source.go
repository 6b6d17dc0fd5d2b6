package core

import (
	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/pxio"
	log "github.com/sirupsen/logrus"
)

// ImageSource decodes a complete file, descriptor or buffer. The header is
// read once and any number of PixelBuffers may be created from it with
// different options.
type ImageSource struct {
	pipe *Pipeline
}

func CreateImageSourceFromFile(path string, opts ...PipelineOption) (*ImageSource, error) {
	src, err := pxio.NewFileSource(path)
	if err != nil {
		return nil, err
	}
	return newImageSource(src, opts)
}

func CreateImageSourceFromBuffer(data []byte, opts ...PipelineOption) (*ImageSource, error) {
	if len(data) == 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "image source", "empty buffer")
	}
	return newImageSource(pxio.NewBufferSource(data), opts)
}

// CreateImageSourceFromFD takes ownership of fd.
func CreateImageSourceFromFD(fd uintptr, opts ...PipelineOption) (*ImageSource, error) {
	src, err := pxio.NewFDSource(fd)
	if err != nil {
		return nil, err
	}
	return newImageSource(src, opts)
}

func newImageSource(src pxio.ByteSource, opts []PipelineOption) (*ImageSource, error) {
	p, err := NewPipeline(src, opts...)
	if err != nil {
		src.Close()
		return nil, err
	}
	return &ImageSource{pipe: p}, nil
}

func (s *ImageSource) header() (plugin.Header, error) {
	if s.pipe.closed {
		return plugin.Header{}, imgerr.New(imgerr.InvalidParameter, "image source", "source closed")
	}
	st := s.pipe.advance(StateHeaderParsed)
	switch st.Kind {
	case StateHeaderParsed, StateBodyReady:
		return s.pipe.header, nil
	case StateFailed:
		return plugin.Header{}, st.Err
	}
	return plugin.Header{}, imgerr.New(imgerr.Malformed, "image source", "header incomplete in %d bytes", s.pipe.src.Size())
}

// GetImageInfo reads only the header.
func (s *ImageSource) GetImageInfo() (pixelmap.ImageInfo, error) {
	hdr, err := s.header()
	if err != nil {
		return pixelmap.ImageInfo{}, err
	}
	return hdr.Info, nil
}

// MimeType is the detected format.
func (s *ImageSource) MimeType() (string, error) {
	if _, err := s.header(); err != nil {
		return "", err
	}
	return s.pipe.mime, nil
}

// CreatePixelMap decodes the body into a new buffer. A nil opts uses the
// options the source was created with.
func (s *ImageSource) CreatePixelMap(opts *options.DecodeOptions) (*pixelmap.PixelBuffer, error) {
	if opts == nil {
		opts = s.pipe.opts
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	hdr, err := s.header()
	if err != nil {
		return nil, err
	}
	pb, err := s.pipe.decoder.DecodeBody(s.pipe.src, hdr, opts)
	if err != nil {
		if imgerr.KindOf(err) == imgerr.SourceIncomplete {
			err = imgerr.Rekind(imgerr.Malformed, "create pixel map", err)
		}
		log.Errorf("image source %s: %v", s.pipe.id, err)
		return nil, err
	}
	return applyDecodeOptions(pb, opts)
}

// SupportedFormats lists the MIME types the source's registry can decode.
func (s *ImageSource) SupportedFormats() []string {
	return s.pipe.registry.MimeTypes(plugin.OpDecode)
}

func (s *ImageSource) Close() error {
	return s.pipe.Close()
}
