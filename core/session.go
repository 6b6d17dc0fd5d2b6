package core

import (
	"github.com/kpfaulkner/pixmap-go/pxio"
)

// IncrementalSession is a pipeline over bytes fed by the caller with
// UpdateData. Dropping a session without Close leaves its buffer to the
// garbage collector; mapped buffers unmap themselves when collected.
type IncrementalSession struct {
	*Pipeline
	src *pxio.IncrementalSource
}

func NewIncrementalSession(opts ...PipelineOption) (*IncrementalSession, error) {
	src := pxio.NewIncrementalSource()
	p, err := NewPipeline(src, opts...)
	if err != nil {
		return nil, err
	}
	return &IncrementalSession{Pipeline: p, src: src}, nil
}

// Received is the number of bytes fed so far.
func (s *IncrementalSession) Received() int64 {
	return s.src.Size()
}
