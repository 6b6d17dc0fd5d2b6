package imgerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := New(Malformed, "tlv", "length %d past end", 12)

	assert.True(t, errors.Is(err, ErrMalformed))
	assert.False(t, errors.Is(err, ErrInvalidParameter))
	assert.Equal(t, Malformed, KindOf(err))
	assert.Contains(t, err.Error(), "tlv")
	assert.Contains(t, err.Error(), "malformed")
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(AllocFailed, "alloc", "too big")
	wrapped := Wrap(IoAbnormal, "outer", inner)
	assert.Equal(t, AllocFailed, KindOf(wrapped))

	plain := Wrap(IoAbnormal, "read", errors.New("disk gone"))
	assert.Equal(t, IoAbnormal, KindOf(plain))
	assert.Nil(t, Wrap(IoAbnormal, "read", nil))
}

func TestRekindReplacesKind(t *testing.T) {
	short := New(SourceIncomplete, "png header", "stream truncated at %d bytes", 40)
	err := Rekind(Malformed, "decode", short)

	assert.Equal(t, Malformed, KindOf(err))
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.False(t, errors.Is(err, ErrSourceIncomplete))
	assert.Contains(t, err.Error(), "truncated at 40")

	plain := Rekind(IoAbnormal, "read", errors.New("disk gone"))
	assert.Equal(t, IoAbnormal, KindOf(plain))
	assert.Nil(t, Rekind(IoAbnormal, "read", nil))
}

func TestKindOfThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("context: %w", New(UnknownFormat, "match", "no plugin"))
	assert.Equal(t, UnknownFormat, KindOf(err))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}
