package shm

import (
	"runtime"
	"strings"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipUnlessLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared memory segments need linux")
	}
}

func TestCreateWriteAndReopen(t *testing.T) {
	skipUnlessLinux(t)

	seg, err := Create(4096)
	require.NoError(t, err)
	defer seg.Close()

	assert.True(t, strings.HasPrefix(seg.Name(), namePrefix))
	assert.True(t, seg.Writable())
	assert.Equal(t, 4096, seg.Size())
	copy(seg.Bytes(), []byte("shared"))

	fd, err := seg.Dup()
	require.NoError(t, err)

	peer, err := Open(fd, 4096, false)
	require.NoError(t, err)
	defer peer.Close()
	assert.Equal(t, "shared", string(peer.Bytes()[:6]))
	assert.False(t, peer.Writable())
}

func TestSealedSegmentRefusesWritableOpen(t *testing.T) {
	skipUnlessLinux(t)

	seg, err := Create(8192)
	require.NoError(t, err)
	defer seg.Close()
	seg.Bytes()[0] = 0xAB

	require.NoError(t, seg.Seal())
	assert.True(t, seg.Sealed())
	assert.False(t, seg.Writable())
	assert.Equal(t, byte(0xAB), seg.Bytes()[0])

	fd, err := seg.Dup()
	require.NoError(t, err)
	_, err = Open(fd, 8192, true)
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
	require.NoError(t, CloseFd(fd))
}

func TestOpenRejectsOversizedRequest(t *testing.T) {
	skipUnlessLinux(t)

	seg, err := Create(4096)
	require.NoError(t, err)
	defer seg.Close()

	fd, err := seg.Dup()
	require.NoError(t, err)
	_, err = Open(fd, 8192, false)
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
	require.NoError(t, CloseFd(fd))
}

func TestCloseTwice(t *testing.T) {
	skipUnlessLinux(t)

	seg, err := Create(100)
	require.NoError(t, err)
	require.NoError(t, seg.Close())
	assert.NoError(t, seg.Close())
	assert.Equal(t, -1, seg.Fd())
	_, err = seg.Dup()
	assert.ErrorIs(t, err, imgerr.ErrInvalidParameter)
}

func TestCreateInvalidSize(t *testing.T) {
	_, err := Create(0)
	assert.Error(t, err)
}

func TestMapAnonymous(t *testing.T) {
	mem, err := MapAnonymous(4096)
	require.NoError(t, err)
	mem[4095] = 1
	assert.NoError(t, Unmap(mem))
}
