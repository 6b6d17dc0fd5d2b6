package serial

import (
	"runtime"
	"testing"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipUnlessLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared memory and descriptor passing need linux")
	}
}

func TestParcelPrimitives(t *testing.T) {
	p := NewParcel()
	require.NoError(t, p.WriteInt32(-5))
	require.NoError(t, p.WriteString("SRGB!"))
	require.NoError(t, p.WriteBool(true))
	require.NoError(t, p.WriteBuffer([]byte{1, 2, 3}))
	require.NoError(t, p.WriteUint32(7))
	assert.Equal(t, 0, len(p.Data())%4)

	v, err := p.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v)
	s, err := p.ReadString(80)
	require.NoError(t, err)
	assert.Equal(t, "SRGB!", s)
	b, err := p.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	buf, err := p.ReadBuffer(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf)
	u, err := p.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), u)

	_, err = p.ReadInt32()
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestParcelReadOnly(t *testing.T) {
	p := NewParcelFrom([]byte{0, 0, 0, 0}, nil)
	assert.ErrorIs(t, p.WriteInt32(1), imgerr.ErrInvalidParameter)

	// index 0 into an empty descriptor table
	_, err := p.ReadFd()
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestParcelInline(t *testing.T) {
	pb := filled(t, 10, 10, pixelmap.AllocatorHeap)
	defer pb.Release()

	p := NewParcel()
	defer p.Close()
	require.NoError(t, WritePixelBuffer(p, pb))
	assert.Empty(t, p.Fds())

	back, err := ReadPixelBuffer(p)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, pixelmap.AllocatorHeap, back.Allocator())
	assert.Equal(t, pb.Pixels(), back.Pixels())
	assert.Equal(t, pixelmap.ColorSpaceDisplayP3, back.ColorSpace())
	assert.Equal(t, 160, back.Info().BaseDensity)
	assert.True(t, back.IsEditable())
}

func TestParcelLargeImmutable(t *testing.T) {
	skipUnlessLinux(t)

	// 80x64 RGBA is 20 KiB
	pb := filled(t, 80, 64, pixelmap.AllocatorHeap)
	defer pb.Release()
	require.Equal(t, 20*1024, pb.ByteCount())
	require.NoError(t, pb.SetEditable(false))

	p := NewParcel()
	defer p.Close()
	require.NoError(t, WritePixelBuffer(p, pb))
	assert.Len(t, p.Fds(), 1)

	back, err := ReadPixelBuffer(p)
	require.NoError(t, err)
	defer back.Release()

	assert.Equal(t, pixelmap.AllocatorSharedMemory, back.Allocator())
	assert.Equal(t, pb.Pixels(), back.Pixels())
	assert.False(t, back.IsEditable())
	assert.ErrorIs(t, back.WritePixel(0, 0, 0xFFFFFFFF), imgerr.ErrInvalidParameter)
	assert.ErrorIs(t, back.SetEditable(true), imgerr.ErrInvalidParameter)
}

func TestParcelLargeMutable(t *testing.T) {
	skipUnlessLinux(t)

	pb := filled(t, 80, 64, pixelmap.AllocatorHeap)
	defer pb.Release()

	p := NewParcel()
	defer p.Close()
	require.NoError(t, WritePixelBuffer(p, pb))

	back, err := ReadPixelBuffer(p)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, pixelmap.AllocatorSharedMemory, back.Allocator())
	assert.True(t, back.IsEditable())
	require.NoError(t, back.WritePixel(0, 0, 0xFF112233))

	// the sidecar is a copy, the sender is untouched
	orig, err := pb.ReadPixel(0, 0)
	require.NoError(t, err)
	assert.NotEqual(t, uint32(0xFF112233), orig)
}

func TestParcelForwardsSharedDescriptor(t *testing.T) {
	skipUnlessLinux(t)

	pb := filled(t, 4, 4, pixelmap.AllocatorSharedMemory)
	defer pb.Release()
	require.NoError(t, pb.SetEditable(false))

	p := NewParcel()
	defer p.Close()
	require.NoError(t, WritePixelBuffer(p, pb))
	require.Len(t, p.Fds(), 1)

	back, err := ReadPixelBuffer(p)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, pixelmap.AllocatorSharedMemory, back.Allocator())
	assert.False(t, back.IsEditable())

	// both map the same memory
	pb.Pixels()[0] = 0xAB
	assert.Equal(t, byte(0xAB), back.Pixels()[0])
}

func TestParcelRejectsLongColorSpace(t *testing.T) {
	p := NewParcel()
	require.NoError(t, p.WriteBool(false))
	require.NoError(t, p.WriteInt32(int32(pixelmap.FormatRGBA8888)))
	require.NoError(t, p.WriteInt32(int32(pixelmap.AlphaOpaque)))
	require.NoError(t, p.WriteString(string(make([]byte, 81))))

	_, err := ReadPixelBuffer(p)
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestParcelRejectsBadByteCount(t *testing.T) {
	p := NewParcel()
	require.NoError(t, p.WriteBool(true))
	require.NoError(t, writeInts(p, int32(pixelmap.FormatRGBA8888), int32(pixelmap.AlphaOpaque)))
	require.NoError(t, p.WriteString("SRGB"))
	require.NoError(t, writeInts(p, 2, 2, 8, 0, int32(pixelmap.AllocatorHeap)))
	require.NoError(t, writeInts(p, int32(ModeInline), 999))

	_, err := ReadPixelBuffer(p)
	assert.ErrorIs(t, err, imgerr.ErrMalformed)
}

func TestParcelOverSocket(t *testing.T) {
	skipUnlessLinux(t)

	a, b, err := Pipe()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	pb := filled(t, 80, 64, pixelmap.AllocatorHeap)
	defer pb.Release()
	require.NoError(t, pb.SetEditable(false))

	out := NewParcel()
	require.NoError(t, WritePixelBuffer(out, pb))
	require.NoError(t, SendParcel(a, out))
	require.NoError(t, out.Close())

	in, err := ReceiveParcel(b)
	require.NoError(t, err)
	defer in.Close()
	require.Len(t, in.Fds(), 1)

	back, err := ReadPixelBuffer(in)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, pixelmap.AllocatorSharedMemory, back.Allocator())
	assert.Equal(t, pb.Pixels(), back.Pixels())
	assert.False(t, back.IsEditable())
}
