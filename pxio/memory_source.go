package pxio

import (
	"io"

	"github.com/kpfaulkner/pixmap-go/imgerr"
)

// BufferSource reads from a caller supplied slice. It is complete from the start.
type BufferSource struct {
	memSource
}

func NewBufferSource(data []byte) *BufferSource {
	return &BufferSource{memSource{data: data, complete: true, kind: KindBuffer}}
}

// IncrementalSource is a growable buffer fed by Append as bytes arrive.
// Once MarkComplete is called its size is frozen.
type IncrementalSource struct {
	memSource
}

func NewIncrementalSource() *IncrementalSource {
	return &IncrementalSource{memSource{kind: KindIncremental}}
}

// Append adds data to the end of the source.
func (s *IncrementalSource) Append(data []byte) error {
	if s.closed {
		return imgerr.New(imgerr.InvalidParameter, "append", "source closed")
	}
	if s.complete {
		return imgerr.New(imgerr.InvalidParameter, "append", "source already complete")
	}
	s.data = append(s.data, data...)
	return nil
}

// MarkComplete records that no more bytes will arrive. It may only happen once.
func (s *IncrementalSource) MarkComplete() error {
	if s.complete {
		return imgerr.New(imgerr.InvalidParameter, "mark complete", "source already complete")
	}
	s.complete = true
	return nil
}

type memSource struct {
	data     []byte
	offset   int64
	complete bool
	closed   bool
	kind     SourceKind
}

func (s *memSource) Read(p []byte) (int, error) {
	if s.offset >= int64(len(s.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, s.shortErr("read")
	}
	n := copy(p, s.data[s.offset:])
	s.offset += int64(n)
	return n, nil
}

func (s *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, imgerr.New(imgerr.InvalidParameter, "read at", "negative offset %d", off)
	}
	if off >= int64(len(s.data)) {
		return 0, s.shortErr("read at")
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, s.shortErr("read at")
	}
	return n, nil
}

func (s *memSource) Seek(offset int64, whence int) (int64, error) {
	abs, err := seekTarget(offset, whence, s.offset, int64(len(s.data)))
	if err != nil {
		return s.offset, err
	}
	s.offset = abs
	return abs, nil
}

func (s *memSource) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, imgerr.New(imgerr.InvalidParameter, "peek", "negative length %d", n)
	}
	end := s.offset + int64(n)
	if end <= int64(len(s.data)) {
		return s.data[s.offset:end], nil
	}
	return s.data[s.offset:], s.shortErr("peek")
}

// shortErr is io.EOF for a complete source so io.SectionReader and the
// image decoders see a normal end of stream.
func (s *memSource) shortErr(op string) error {
	if s.complete {
		return io.EOF
	}
	return imgerr.New(imgerr.SourceIncomplete, op, "only %d bytes available", len(s.data))
}

func (s *memSource) Tell() int64 {
	return s.offset
}

func (s *memSource) Size() int64 {
	return int64(len(s.data))
}

func (s *memSource) IsComplete() bool {
	return s.complete
}

func (s *memSource) Kind() SourceKind {
	return s.kind
}

// Bytes exposes the accumulated data without copying.
func (s *memSource) Bytes() []byte {
	return s.data
}

func (s *memSource) Close() error {
	s.closed = true
	s.data = nil
	s.offset = 0
	return nil
}
