package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"root", Record{Kind: Object, Next: 0, Key: RootKey}},
		{"closed string", Record{Kind: String, Next: 128, Key: "greeting"}},
		{"u32", Record{Kind: U32, Next: 64, Key: "count"}},
		{"long key truncates", Record{Kind: Null, Next: 40, Key: "this-key-is-definitely-too-long-to-fit"}},
		{"max offset", Record{Kind: Array, Next: 0xFFFFFF, Key: "arr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Encode(tt.rec)
			got, err := Decode(buf)
			require.NoError(t, err)

			want := tt.rec
			if len(want.Key) > KeyMaxLen {
				want.Key = want.Key[:KeyMaxLen]
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestChecksumClosure(t *testing.T) {
	buf := Encode(Record{Kind: Float, Next: 300, Key: "x"})
	assert.Zero(t, wordSum(buf[:]))
}

func TestDecodeDetectsCorruption(t *testing.T) {
	buf := Encode(Record{Kind: S32, Next: 200, Key: "n"})
	buf[10] ^= 0xFF // corrupt a key byte without touching the checksum

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestNextOffsetPacking(t *testing.T) {
	for _, offset := range []uint32{0, 1, 65535, 65536, 0xABCDEF, 0xFFFFFF} {
		page, pageOffset := packNext(offset)
		assert.Equal(t, offset, unpackNext(page, pageOffset))
	}
}

func TestKeyTruncationAndPadding(t *testing.T) {
	buf := Encode(Record{Kind: String, Next: 10, Key: "0123456789abcdefGHI"})
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcde", got.Key)
	assert.Len(t, got.Key, KeyMaxLen)
}

func TestZeroNextMeansOpen(t *testing.T) {
	buf := Encode(Record{Kind: Object, Next: 0, Key: RootKey})
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Zero(t, got.Next)
}
