package content

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCompression(t *testing.T) {
	assert.Equal(t, CompressionNone, SelectCompression(nil))
	assert.Equal(t, CompressionZstd, SelectCompression([]byte("plain text config\n")))
	assert.Equal(t, CompressionLZ4, SelectCompression([]byte{0x00, 0x01, 0x02}))
	assert.Equal(t, CompressionLZ4, SelectCompression([]byte{0xff, 0xfe, 'a'}))
}

func TestSelectCompressionTruncatedRune(t *testing.T) {
	// A probe cut inside a multi-byte rune is still text.
	data := []byte(strings.Repeat("a", probeSize-1) + "é")
	assert.Equal(t, CompressionZstd, SelectCompression(data))
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("compressible ", 500))
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			payload, used, err := compress(data, tag)
			require.NoError(t, err)
			assert.Equal(t, tag, used)

			out, err := decompress(payload, used, len(data))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, out))
		})
	}
}

func TestCompressFallsBackWhenIncompressible(t *testing.T) {
	data := []byte("ab")
	payload, used, err := compress(data, CompressionZstd)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, used)
	assert.Equal(t, data, payload)
}

func TestDecompressSizeMismatch(t *testing.T) {
	_, err := decompress([]byte("abc"), CompressionNone, 4)
	require.Error(t, err)

	_, err = decompress([]byte("abc"), CompressionTag(9), 3)
	require.Error(t, err)

	_, err = decompress([]byte("abc"), CompressionLZ4, -1)
	require.Error(t, err)

	_, err = decompress([]byte("abc"), CompressionLZ4, 3*lz4MaxRatio+lz4MaxRatio)
	require.Error(t, err)
}

func TestCompressionTagString(t *testing.T) {
	assert.Equal(t, "zstd", CompressionZstd.String())
	assert.Equal(t, "unknown(7)", CompressionTag(7).String())
}
