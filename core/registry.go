// Package core drives decodes from a byte source to a PixelBuffer and encodes
// PixelBuffers back out through the plugin registry.
package core

import (
	"sync"

	"github.com/kpfaulkner/pixmap-go/codecs"
	"github.com/kpfaulkner/pixmap-go/plugin"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *plugin.Registry
	defaultErr      error
)

// DefaultRegistry is the frozen process-wide registry holding the built-in codecs.
func DefaultRegistry() (*plugin.Registry, error) {
	defaultOnce.Do(func() {
		reg := plugin.NewRegistry()
		if defaultErr = codecs.Register(reg, nil); defaultErr != nil {
			return
		}
		reg.Freeze()
		defaultRegistry = reg
	})
	return defaultRegistry, defaultErr
}

// SupportedFormats lists the MIME types the default registry can decode.
func SupportedFormats() ([]string, error) {
	reg, err := DefaultRegistry()
	if err != nil {
		return nil, err
	}
	return reg.MimeTypes(plugin.OpDecode), nil
}
