// Package codecs holds the built-in decode and encode plugins.
package codecs

import (
	"bytes"
	_ "embed"
	"io"

	"github.com/kpfaulkner/pixmap-go/plugin"
)

//go:embed capabilities.yaml
var defaultCapabilities []byte

// Builtins maps plugin ids to their implementations.
func Builtins() map[string]any {
	return map[string]any{
		"pixmap": PixmapCodec{},
		"png":    NewPNGCodec(),
		"jpeg":   NewJPEGCodec(),
		"gif":    NewGIFCodec(),
		"bmp":    NewBMPCodec(),
		"tiff":   NewTIFFCodec(),
		"webp":   NewWEBPCodec(),
	}
}

// DefaultCapabilities returns the built-in capability table.
func DefaultCapabilities() []plugin.Capability {
	caps, err := plugin.LoadCapabilities(bytes.NewReader(defaultCapabilities))
	if err != nil {
		panic("codecs: embedded capability table: " + err.Error())
	}
	return caps
}

// Register binds every built-in plugin. A non-nil table replaces the embedded
// one, which lets deployments reorder priorities or disable formats.
func Register(reg *plugin.Registry, table io.Reader) error {
	caps := DefaultCapabilities()
	if table != nil {
		var err error
		if caps, err = plugin.LoadCapabilities(table); err != nil {
			return err
		}
	}
	return reg.RegisterAll(caps, Builtins())
}
