package quickxorhash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}

	return b
}

func TestSum_KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty", nil, "AAAAAAAAAAAAAAAAAAAAAAAAAAA="},
		{"hello", []byte("hello"), "aCgDG9jwBgAAAAAABQAAAAAAAAA="},
		{"hello world", []byte("hello world"), "aCgDG9jwBhDc4Q1yawMZAAAAAAA="},
		{"1000 zero bytes", make([]byte, 1000), "AAAAAAAAAAAAAAAA6AMAAAAAAAA="},
		{"1000 0xFF bytes", bytes.Repeat([]byte{0xFF}, 1000), "Yxvb2MY2trGNbWxj89jYOc5xjnM="},
		{"counting 1024", countingBytes(1024), "h7xr2dbCayZCQYR9KKhlwDuT4UI="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := Sum(tt.input)
			assert.Equal(t, tt.want, Encode(sum[:]))
		})
	}
}

func TestWrite_SplitWritesMatchOneShot(t *testing.T) {
	input := countingBytes(1024)
	want := Sum(input)

	h := New()
	rest := input

	for _, n := range []int{1, 7, 64, 13, 128, 159, 161} {
		_, err := h.Write(rest[:n])
		require.NoError(t, err)

		rest = rest[n:]
	}

	_, _ = h.Write(rest)
	assert.Equal(t, want[:], h.Sum(nil))

	h.Reset()

	for _, b := range input {
		_, _ = h.Write([]byte{b})
	}

	assert.Equal(t, want[:], h.Sum(nil))
}

func TestSum_DoesNotMutateAndAppends(t *testing.T) {
	h := New()
	_, _ = h.Write([]byte("hello"))

	first := h.Sum([]byte("prefix"))
	assert.Equal(t, []byte("prefix"), first[:6])
	assert.Len(t, first, 6+Size)
	assert.Equal(t, first[6:], h.Sum(nil))

	_, _ = h.Write([]byte(" world"))
	assert.Equal(t, "aCgDG9jwBhDc4Q1yawMZAAAAAAA=", Encode(h.Sum(nil)))
}

func TestReset(t *testing.T) {
	h := New()
	_, _ = h.Write([]byte("hello"))
	h.Reset()
	_, _ = h.Write([]byte("world"))

	want := Sum([]byte("world"))
	assert.Equal(t, want[:], h.Sum(nil))
}

func TestSizes(t *testing.T) {
	h := New()
	assert.Equal(t, Size, h.Size())
	assert.Equal(t, BlockSize, h.BlockSize())
}
