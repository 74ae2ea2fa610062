package wire

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadU64(v uint64) [8]byte {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	return p
}

func TestDecodeTrackedValue_Int32(t *testing.T) {
	v, err := DecodeTrackedValue(ApiTrackInt32, payloadU64(uint64(uint32(math.MaxUint32))))
	require.NoError(t, err)
	assert.Equal(t, ValueInt64, v.Kind)
	assert.Equal(t, int64(-1), v.Int64)
}

func TestDecodeTrackedValue_Uint32(t *testing.T) {
	v, err := DecodeTrackedValue(ApiTrackUint32, payloadU64(uint64(uint32(math.MaxUint32))))
	require.NoError(t, err)
	assert.Equal(t, ValueUint64, v.Kind)
	assert.Equal(t, uint64(math.MaxUint32), v.Uint64)
}

func TestDecodeTrackedValue_Int64(t *testing.T) {
	n := int64(-7)
	v, err := DecodeTrackedValue(ApiTrackInt64, payloadU64(uint64(n)))
	require.NoError(t, err)
	assert.Equal(t, ValueInt64, v.Kind)
	assert.Equal(t, int64(-7), v.Int64)
}

func TestDecodeTrackedValue_Uint64(t *testing.T) {
	v, err := DecodeTrackedValue(ApiTrackUint64, payloadU64(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, ValueUint64, v.Kind)
	assert.Equal(t, uint64(math.MaxUint64), v.Uint64)
}

func TestDecodeTrackedValue_Float(t *testing.T) {
	v, err := DecodeTrackedValue(ApiTrackFloat, payloadU64(uint64(math.Float32bits(1.5))))
	require.NoError(t, err)
	assert.Equal(t, ValueFloat64, v.Kind)
	assert.Equal(t, 1.5, v.Float64)
}

func TestDecodeTrackedValue_Double(t *testing.T) {
	v, err := DecodeTrackedValue(ApiTrackDouble, payloadU64(math.Float64bits(math.Pi)))
	require.NoError(t, err)
	assert.Equal(t, ValueFloat64, v.Kind)
	assert.Equal(t, math.Pi, v.Float64)
}

func TestDecodeTrackedValue_NonValueKindRejected(t *testing.T) {
	for _, kind := range []ApiEventKind{ApiScopeStart, ApiScopeStop, ApiScopeStartAsync, ApiScopeStopAsync} {
		_, err := DecodeTrackedValue(kind, payloadU64(1))
		assert.ErrorIs(t, err, ErrUnknownEnumValue, "kind %s", kind)
	}
}

func TestDecodeThreadState_Bounds(t *testing.T) {
	for b := byte(0); b < byte(threadStateEnd); b++ {
		state, err := DecodeThreadState(b)
		require.NoError(t, err)
		assert.Equal(t, ThreadState(b), state)
	}

	_, err := DecodeThreadState(byte(threadStateEnd))
	assert.ErrorIs(t, err, ErrUnknownEnumValue)
}

func TestDecodeCallstackKind_Bounds(t *testing.T) {
	for b := byte(0); b < byte(callstackKindEnd); b++ {
		kind, err := DecodeCallstackKind(b)
		require.NoError(t, err)
		assert.Equal(t, CallstackKind(b), kind)
	}

	_, err := DecodeCallstackKind(byte(callstackKindEnd))
	assert.ErrorIs(t, err, ErrUnknownEnumValue)
}
