package pxio

import (
	"io"

	"github.com/kpfaulkner/pixmap-go/imgerr"
)

type SourceKind int

const (
	KindFile SourceKind = iota
	KindBuffer
	KindIncremental
)

func (k SourceKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindBuffer:
		return "buffer"
	case KindIncremental:
		return "incremental"
	}
	return "unknown"
}

// ByteSource gives uniform read/peek/seek/tell access over a file, an in-memory
// buffer or a growable incremental buffer.
//
// Size reports the number of bytes currently available. For an incremental
// source it grows until IsComplete reports true, after which it never changes.
type ByteSource interface {
	io.Reader
	io.ReaderAt
	io.Seeker

	// Peek returns up to n bytes from the current offset without advancing it.
	// When fewer than n bytes exist the available bytes are returned together with
	// io.EOF on a complete source or an imgerr.SourceIncomplete error otherwise.
	Peek(n int) ([]byte, error)

	Tell() int64
	Size() int64
	IsComplete() bool
	Kind() SourceKind
	Close() error
}

// Need checks that n bytes starting at off are available in src.
// Short data is SourceIncomplete while more bytes may still arrive and
// Malformed once the source is complete.
func Need(src ByteSource, off int64, n int64) error {
	if off < 0 || n < 0 {
		return imgerr.New(imgerr.InvalidParameter, "need", "negative range %d+%d", off, n)
	}
	if off+n <= src.Size() {
		return nil
	}
	if !src.IsComplete() {
		return imgerr.New(imgerr.SourceIncomplete, "need", "have %d bytes, need %d", src.Size(), off+n)
	}
	return imgerr.New(imgerr.Malformed, "need", "source truncated at %d bytes, need %d", src.Size(), off+n)
}

// Section returns a reader over the bytes currently available in src.
func Section(src ByteSource, off int64) *io.SectionReader {
	size := src.Size() - off
	if size < 0 {
		size = 0
	}
	return io.NewSectionReader(src, off, size)
}

// ReadAll copies every available byte of src without moving its cursor.
func ReadAll(src ByteSource) ([]byte, error) {
	buf := make([]byte, src.Size())
	if _, err := src.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "read all", err)
	}
	return buf, nil
}

func seekTarget(offset int64, whence int, cur int64, size int64) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = cur + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, imgerr.New(imgerr.InvalidParameter, "seek", "invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, imgerr.New(imgerr.InvalidParameter, "seek", "negative position %d", abs)
	}
	if abs > size {
		return 0, imgerr.New(imgerr.InvalidParameter, "seek", "position %d beyond size %d", abs, size)
	}
	return abs, nil
}
