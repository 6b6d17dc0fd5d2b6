package pxio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSourcePeekDoesNotAdvance(t *testing.T) {
	src := NewBufferSource([]byte{1, 2, 3, 4, 5})

	b, err := src.Peek(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
	assert.Equal(t, int64(0), src.Tell())

	buf := make([]byte, 2)
	n, err := src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2}, buf)
	assert.Equal(t, int64(2), src.Tell())

	b, err = src.Peek(10)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []byte{3, 4, 5}, b)
}

func TestBufferSourceSeek(t *testing.T) {
	src := NewBufferSource(make([]byte, 10))

	for _, tc := range []struct {
		name      string
		offset    int64
		whence    int
		expected  int64
		expectErr bool
	}{
		{name: "start", offset: 4, whence: io.SeekStart, expected: 4},
		{name: "current", offset: 2, whence: io.SeekCurrent, expected: 6},
		{name: "end", offset: -1, whence: io.SeekEnd, expected: 9},
		{name: "negative", offset: -20, whence: io.SeekCurrent, expectErr: true},
		{name: "past end", offset: 11, whence: io.SeekStart, expectErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := src.Seek(tc.offset, tc.whence)
			if tc.expectErr {
				assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, pos)
			assert.Equal(t, tc.expected, src.Tell())
		})
	}
}

func TestIncrementalSourceGrowsAndCompletes(t *testing.T) {
	src := NewIncrementalSource()
	assert.Equal(t, KindIncremental, src.Kind())
	assert.False(t, src.IsComplete())

	_, err := src.Peek(4)
	assert.ErrorIs(t, err, imgerr.ErrSourceIncomplete)

	require.NoError(t, src.Append([]byte{1, 2}))
	require.NoError(t, src.Append([]byte{3, 4, 5}))
	assert.Equal(t, int64(5), src.Size())

	b, err := src.Peek(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)

	buf := make([]byte, 8)
	n, err := src.ReadAt(buf, 2)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, imgerr.ErrSourceIncomplete)

	require.NoError(t, src.MarkComplete())
	n, err = src.ReadAt(buf, 2)
	assert.Equal(t, 3, n)
	assert.Equal(t, io.EOF, err)

	assert.ErrorIs(t, src.MarkComplete(), imgerr.ErrInvalidParameter)
	assert.ErrorIs(t, src.Append([]byte{6}), imgerr.ErrInvalidParameter)
	assert.Equal(t, int64(5), src.Size())
}

func TestNeed(t *testing.T) {
	src := NewIncrementalSource()
	require.NoError(t, src.Append(make([]byte, 8)))

	assert.NoError(t, Need(src, 0, 8))
	assert.ErrorIs(t, Need(src, 4, 8), imgerr.ErrSourceIncomplete)

	require.NoError(t, src.MarkComplete())
	assert.ErrorIs(t, Need(src, 4, 8), imgerr.ErrMalformed)
	assert.ErrorIs(t, Need(src, -1, 2), imgerr.ErrInvalidParameter)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("pixmap-data"), 0666))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, KindFile, src.Kind())
	assert.True(t, src.IsComplete())
	assert.Equal(t, int64(11), src.Size())

	b, err := src.Peek(6)
	require.NoError(t, err)
	assert.Equal(t, "pixmap", string(b))
	assert.Equal(t, int64(0), src.Tell())

	all, err := ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "pixmap-data", string(all))

	_, err = src.Seek(7, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "data", string(rest))
}

func TestFileSourceMissing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, imgerr.ErrIoAbnormal))
}

func TestFDSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fd.bin")
	require.NoError(t, os.WriteFile(path, []byte{9, 8, 7}, 0666))
	f, err := os.Open(path)
	require.NoError(t, err)

	src, err := NewFDSource(f.Fd())
	require.NoError(t, err)
	assert.Equal(t, int64(3), src.Size())
	b, err := src.Peek(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, b)
}

func TestSectionStopsAtAvailableBytes(t *testing.T) {
	src := NewIncrementalSource()
	require.NoError(t, src.Append([]byte("abcdef")))

	sec := Section(src, 2)
	b, err := io.ReadAll(sec)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(b))
}
