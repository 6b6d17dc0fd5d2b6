package core

import (
	"github.com/google/uuid"
	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/pxio"
	"github.com/kpfaulkner/pixmap-go/sniff"
	log "github.com/sirupsen/logrus"
)

type PipelineOption func(p *Pipeline) error

func WithRegistry(reg *plugin.Registry) PipelineOption {
	return func(p *Pipeline) error {
		if reg == nil {
			return imgerr.New(imgerr.InvalidParameter, "pipeline", "nil registry")
		}
		p.registry = reg
		return nil
	}
}

func WithDecodeOptions(opts *options.DecodeOptions) PipelineOption {
	return func(p *Pipeline) error {
		if opts == nil {
			opts = options.NewDecodeOptions(nil)
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		p.opts = opts
		return nil
	}
}

// WithFormatHint is used when sniffing finds nothing. It overrides any hint in
// the decode options.
func WithFormatHint(mime string) PipelineOption {
	return func(p *Pipeline) error {
		p.hint = mime
		return nil
	}
}

func WithSniffer(s *sniff.Sniffer) PipelineOption {
	return func(p *Pipeline) error {
		p.sniffer = s
		return nil
	}
}

// Pipeline drives one source from format detection to a finished
// PixelBuffer. It is owned by a single goroutine and owns its source.
type Pipeline struct {
	id       string
	src      pxio.ByteSource
	registry *plugin.Registry
	sniffer  *sniff.Sniffer
	opts     *options.DecodeOptions
	hint     string

	state    DecodeState
	mime     string
	pluginID string
	decoder  plugin.Decoder
	header   plugin.Header
	buf      *pixelmap.PixelBuffer

	// what the last advance saw and how far it was allowed to go
	seen         bool
	lastSize     int64
	lastComplete bool
	lastLimit    StateKind

	finalized bool
	closed    bool
}

// NewPipeline prepares a decode of src. Nothing is read until Advance.
func NewPipeline(src pxio.ByteSource, opts ...PipelineOption) (*Pipeline, error) {
	if src == nil {
		return nil, imgerr.New(imgerr.InvalidParameter, "pipeline", "nil source")
	}
	p := &Pipeline{
		id:      uuid.NewString(),
		src:     src,
		sniffer: sniff.Default(),
		state:   DecodeState{Kind: StateUnresolved},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.registry == nil {
		reg, err := DefaultRegistry()
		if err != nil {
			return nil, err
		}
		p.registry = reg
	}
	if p.opts == nil {
		p.opts = options.NewDecodeOptions(nil)
	}
	if p.hint == "" {
		p.hint = p.opts.FormatHint
	}
	return p, nil
}

func (p *Pipeline) ID() string {
	return p.id
}

func (p *Pipeline) State() DecodeState {
	return p.state
}

// MimeType is the detected or hinted format, empty until a plugin is chosen.
func (p *Pipeline) MimeType() string {
	return p.mime
}

func (p *Pipeline) PluginID() string {
	return p.pluginID
}

// Header is valid once the state has reached StateHeaderParsed.
func (p *Pipeline) Header() plugin.Header {
	return p.header
}

// Source returns the source the pipeline reads from.
func (p *Pipeline) Source() pxio.ByteSource {
	return p.src
}

// Advance does as much work as the available bytes allow and returns the new
// state. Calling it again with no new bytes returns the same state without
// re-parsing anything.
func (p *Pipeline) Advance() DecodeState {
	return p.advance(StateBodyReady)
}

// advance stops once the state reaches limit.
func (p *Pipeline) advance(limit StateKind) DecodeState {
	if p.state.Kind.Terminal() || p.closed {
		return p.state
	}
	size, complete := p.src.Size(), p.src.IsComplete()
	if p.seen && size == p.lastSize && complete == p.lastComplete && limit <= p.lastLimit {
		return p.state
	}
	p.seen, p.lastSize, p.lastComplete, p.lastLimit = true, size, complete, limit

	before := p.state.Kind
	for p.state.Kind < limit && p.step() {
	}
	if p.state.Kind != before {
		log.Debugf("pipeline %s: %s -> %s", p.id, before, p.state)
	}
	return p.state
}

// step performs one transition and reports whether another may follow.
func (p *Pipeline) step() bool {
	switch {
	case p.decoder == nil:
		return p.resolve()
	case p.state.Info == nil:
		return p.parseHeader()
	case p.state.Kind == StateHeaderParsed:
		return p.parseBody()
	}
	return false
}

func (p *Pipeline) resolve() bool {
	mime, ok, err := p.sniffer.Sniff(p.src)
	if err != nil {
		if sniff.IsIncomplete(err) {
			p.wait()
			return false
		}
		p.fail(err)
		return false
	}
	if ok {
		if p.hint != "" && p.hint != mime {
			log.Debugf("pipeline %s: sniffed %s overrides hint %s", p.id, mime, p.hint)
		}
	} else if p.hint == "" {
		p.fail(imgerr.New(imgerr.UnknownFormat, "resolve", "unrecognised signature and no format hint"))
		return false
	}

	id, err := p.registry.MatchBest(p.hint, mime, plugin.OpDecode)
	if err != nil {
		p.fail(err)
		return false
	}
	dec, err := p.registry.Decoder(id)
	if err != nil {
		p.fail(err)
		return false
	}
	p.mime = mime
	if p.mime == "" {
		p.mime = p.hint
	}
	p.pluginID, p.decoder = id, dec
	return true
}

func (p *Pipeline) parseHeader() bool {
	hdr, err := p.decoder.DecodeHeader(p.src)
	if err != nil {
		p.shortOrFail(err)
		return false
	}
	p.header = hdr
	info := hdr.Info
	p.state = DecodeState{Kind: StateHeaderParsed, Info: &info}
	return true
}

func (p *Pipeline) parseBody() bool {
	pb, err := p.decoder.DecodeBody(p.src, p.header, p.opts)
	if err != nil {
		p.shortOrFail(err)
		return false
	}
	if pb, err = applyDecodeOptions(pb, p.opts); err != nil {
		p.fail(err)
		return false
	}
	p.buf = pb
	info := pb.Info()
	p.state = DecodeState{Kind: StateBodyReady, Info: &info}
	return false
}

// shortOrFail keeps waiting on SourceIncomplete unless the source can no longer grow.
func (p *Pipeline) shortOrFail(err error) {
	if imgerr.KindOf(err) != imgerr.SourceIncomplete {
		p.fail(err)
		return
	}
	if p.src.IsComplete() {
		p.fail(imgerr.Rekind(imgerr.Malformed, "decode", err))
		return
	}
	p.wait()
}

// wait records a short source. A parsed header is kept.
func (p *Pipeline) wait() {
	if p.state.Kind == StateUnresolved {
		p.state = DecodeState{Kind: StateSourceIncomplete}
	}
}

func (p *Pipeline) fail(err error) {
	if imgerr.KindOf(err) == imgerr.Unknown {
		err = imgerr.Wrap(imgerr.Malformed, "decode", err)
	}
	log.Errorf("pipeline %s (%s) failed: %v", p.id, p.pluginID, err)
	p.state = DecodeState{Kind: StateFailed, Info: p.state.Info, Err: err}
}

// UpdateData appends a chunk to an incremental source and advances. An empty
// chunk is only accepted as the last one.
func (p *Pipeline) UpdateData(data []byte, isLast bool) (DecodeState, error) {
	inc, ok := p.src.(*pxio.IncrementalSource)
	if !ok {
		return p.state, imgerr.New(imgerr.InvalidParameter, "update data", "source is not incremental")
	}
	if len(data) == 0 && !isLast {
		return p.state, imgerr.New(imgerr.InvalidParameter, "update data", "empty chunk")
	}
	if p.closed || p.finalized {
		return p.state, imgerr.New(imgerr.InvalidParameter, "update data", "pipeline closed")
	}
	if len(data) > 0 {
		if err := inc.Append(data); err != nil {
			return p.state, err
		}
	}
	if isLast && !inc.IsComplete() {
		if err := inc.MarkComplete(); err != nil {
			return p.state, err
		}
	}
	return p.Advance(), nil
}

// Progress estimates how much of the body has arrived, 0 to 100.
func (p *Pipeline) Progress() uint8 {
	switch p.state.Kind {
	case StateBodyReady:
		return 100
	case StateHeaderParsed:
		if p.header.BodySize <= 0 {
			return 0
		}
		got := p.src.Size() - p.header.BodyOffset
		if got <= 0 {
			return 0
		}
		if got >= p.header.BodySize {
			// the decoder still has work to do
			return 99
		}
		return uint8(got * 100 / p.header.BodySize)
	}
	return 0
}

// Finalize hands over the decoded buffer and closes the pipeline. It is only
// valid in StateBodyReady and only once.
func (p *Pipeline) Finalize() (*pixelmap.PixelBuffer, error) {
	if p.finalized {
		return nil, imgerr.New(imgerr.InvalidParameter, "finalize", "pipeline already finalized")
	}
	if p.state.Kind != StateBodyReady {
		if p.state.Err != nil {
			return nil, p.state.Err
		}
		return nil, imgerr.New(imgerr.InvalidParameter, "finalize", "pipeline is %s", p.state.Kind)
	}
	pb := p.buf
	p.buf = nil
	p.finalized = true
	if err := p.Close(); err != nil {
		log.Warnf("pipeline %s: closing source: %v", p.id, err)
	}
	return pb, nil
}

// Decode advances a complete source to the end and finalizes.
func (p *Pipeline) Decode() (*pixelmap.PixelBuffer, error) {
	st := p.Advance()
	switch st.Kind {
	case StateBodyReady:
		return p.Finalize()
	case StateFailed:
		return nil, st.Err
	}
	return nil, imgerr.New(imgerr.SourceIncomplete, "decode", "source has %d bytes and is not complete", p.src.Size())
}

// Close releases a buffer that was never finalized and closes the source.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.buf != nil {
		if err := p.buf.Release(); err != nil {
			log.Warnf("pipeline %s: releasing unfinalized buffer: %v", p.id, err)
		}
		p.buf = nil
	}
	return p.src.Close()
}
