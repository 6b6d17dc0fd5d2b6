// Package plugin matches byte sources and output formats to codec plugins.
package plugin

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/pxio"
	log "github.com/sirupsen/logrus"
)

// ErrDuplicatePlugin is wrapped in the InvalidParameter error returned when a
// plugin id is registered twice.
var ErrDuplicatePlugin = errors.New("duplicate plugin")

// Header is what a decoder learns before reading pixels.
type Header struct {
	Info pixelmap.ImageInfo

	// BodyOffset and BodySize locate the pixel data. BodySize is 0 when the
	// format cannot tell in advance, in which case progress stays at 0.
	BodyOffset int64
	BodySize   int64

	// RowStride of the stored body, 0 when the format has no raw rows
	RowStride int
}

// Decoder is implemented by decode plugins. Both calls may return an
// imgerr.SourceIncomplete error while an incremental source is still short.
type Decoder interface {
	DecodeHeader(src pxio.ByteSource) (Header, error)
	DecodeBody(src pxio.ByteSource, hdr Header, opts *options.DecodeOptions) (*pixelmap.PixelBuffer, error)
}

type Encoder interface {
	Encode(w io.Writer, pb *pixelmap.PixelBuffer, opts *options.PackOptions) error
}

type entry struct {
	cap     Capability
	decoder Decoder
	encoder Encoder
}

// snapshot is never modified once published.
type snapshot struct {
	entries []*entry
	byID    map[string]*entry
}

// Registry holds capabilities in registration order. Lookups read an
// immutable snapshot and take no lock, so a registry populated at startup can
// be shared freely.
type Registry struct {
	mu     sync.Mutex
	frozen atomic.Bool
	snap   atomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byID: map[string]*entry{}})
	return r
}

// Register adds a capability. impl may be nil, a Decoder, an Encoder or both,
// and must cover every op the capability declares.
func (r *Registry) Register(c Capability, impl any) error {
	if err := c.validate(); err != nil {
		return err
	}
	e := &entry{cap: c}
	if impl != nil {
		e.decoder, _ = impl.(Decoder)
		e.encoder, _ = impl.(Encoder)
		if c.Ops.Has(OpDecode) && e.decoder == nil {
			return imgerr.New(imgerr.InvalidParameter, "register", "plugin %s declares decode but cannot decode", c.PluginID)
		}
		if c.Ops.Has(OpEncode) && e.encoder == nil {
			return imgerr.New(imgerr.InvalidParameter, "register", "plugin %s declares encode but cannot encode", c.PluginID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return imgerr.New(imgerr.InvalidParameter, "register", "registry is frozen")
	}
	old := r.snap.Load()
	if _, ok := old.byID[c.PluginID]; ok {
		return &imgerr.Error{Kind: imgerr.InvalidParameter, Op: "register", Err: fmt.Errorf("%w %s", ErrDuplicatePlugin, c.PluginID)}
	}

	next := &snapshot{
		entries: append(append([]*entry(nil), old.entries...), e),
		byID:    make(map[string]*entry, len(old.byID)+1),
	}
	for k, v := range old.byID {
		next.byID[k] = v
	}
	next.byID[c.PluginID] = e
	r.snap.Store(next)
	log.Debugf("registered plugin %s for %v (%s, priority %d)", c.PluginID, c.MimeTypes, c.Ops, c.Priority)
	return nil
}

// Freeze rejects any further registration.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// MatchBest picks the plugin for op. The candidate set is every plugin
// supporting op whose MIME types contain sniffed if given, else hint if given,
// else every plugin. The highest priority wins and ties go to the earliest
// registration.
func (r *Registry) MatchBest(hint string, sniffed string, op Op) (string, error) {
	key := sniffed
	if key == "" {
		key = hint
	}

	var best *entry
	for _, e := range r.snap.Load().entries {
		if !e.cap.Ops.Has(op) {
			continue
		}
		if key != "" && !e.cap.Supports(key) {
			continue
		}
		if best == nil || e.cap.Priority > best.cap.Priority {
			best = e
		}
	}
	if best == nil {
		return "", imgerr.New(imgerr.UnknownFormat, "match", "no %s plugin for %q", op, key)
	}
	return best.cap.PluginID, nil
}

func (r *Registry) Capability(id string) (Capability, bool) {
	e, ok := r.snap.Load().byID[id]
	if !ok {
		return Capability{}, false
	}
	return e.cap, true
}

func (r *Registry) Decoder(id string) (Decoder, error) {
	e, ok := r.snap.Load().byID[id]
	if !ok || e.decoder == nil {
		return nil, imgerr.New(imgerr.UnknownFormat, "decoder", "no decoder bound to plugin %q", id)
	}
	return e.decoder, nil
}

func (r *Registry) Encoder(id string) (Encoder, error) {
	e, ok := r.snap.Load().byID[id]
	if !ok || e.encoder == nil {
		return nil, imgerr.New(imgerr.UnknownFormat, "encoder", "no encoder bound to plugin %q", id)
	}
	return e.encoder, nil
}

// Capabilities lists every registered capability in registration order.
func (r *Registry) Capabilities() []Capability {
	entries := r.snap.Load().entries
	out := make([]Capability, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.cap)
	}
	return out
}

// MimeTypes lists the distinct MIME types supported for op.
func (r *Registry) MimeTypes(op Op) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range r.snap.Load().entries {
		if !e.cap.Ops.Has(op) {
			continue
		}
		for _, m := range e.cap.MimeTypes {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// RegisterAll binds each capability to the implementation with the same
// plugin id. Capabilities without an implementation are skipped with a warning.
func (r *Registry) RegisterAll(caps []Capability, impls map[string]any) error {
	for _, c := range caps {
		impl, ok := impls[c.PluginID]
		if !ok {
			log.Warnf("capability %s has no implementation, skipping", c.PluginID)
			continue
		}
		if err := r.Register(c, impl); err != nil {
			return err
		}
	}
	return nil
}
