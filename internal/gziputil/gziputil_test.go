package gziputil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompress(t *testing.T) {
	data := bytes.Repeat([]byte(`{"email":"ana@uni.edu"}`), 50)

	packed, err := Compress(data)
	require.NoError(t, err)
	assert.True(t, IsGzip(packed))
	assert.Less(t, len(packed), len(data))

	out, err := Decompress(packed, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDecompressLimit(t *testing.T) {
	packed, err := Compress(make([]byte, 4096))
	require.NoError(t, err)

	_, err = Decompress(packed, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestIsGzip(t *testing.T) {
	assert.False(t, IsGzip(nil))
	assert.False(t, IsGzip([]byte(`{}`)))
	assert.True(t, IsGzip([]byte{0x1f, 0x8b, 0x08}))
}
