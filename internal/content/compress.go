package content

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how a blob payload is stored. The values are
// part of the on-disk format.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	CompressionLZ4  CompressionTag = 1
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// probeSize bounds how much of a blob SelectCompression inspects.
const probeSize = 4096

// lz4MaxRatio is the largest expansion an LZ4 block can encode.
const lz4MaxRatio = 255

// zstdPreallocLimit caps the output buffer reserved from an untrusted size
// header before zstd decoding.
const zstdPreallocLimit = 1 << 20

// errIncompressible is returned when compression does not shrink the data.
var errIncompressible = errors.New("data is incompressible")

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("content: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("content: zstd decoder initialization failed: " + err.Error())
	}
}

// SelectCompression picks zstd for text-like content and LZ4 otherwise.
// Managed files are mostly configuration text, where zstd's ratio wins.
func SelectCompression(data []byte) CompressionTag {
	if len(data) == 0 {
		return CompressionNone
	}
	probe := data
	if len(probe) > probeSize {
		probe = probe[:probeSize]
	}
	if isText(probe) {
		return CompressionZstd
	}
	return CompressionLZ4
}

// isText treats valid UTF-8 without NUL bytes as text. A probe cut in the
// middle of a multi-byte rune is still text.
func isText(probe []byte) bool {
	for i := 0; i < len(probe); {
		if probe[i] == 0 {
			return false
		}
		r, size := utf8.DecodeRune(probe[i:])
		if r == utf8.RuneError && size == 1 {
			return len(probe)-i < utf8.UTFMax && !utf8.FullRune(probe[i:])
		}
		i += size
	}
	return true
}

// compress returns the stored payload and the tag actually used; content
// that does not shrink falls back to CompressionNone.
func compress(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	var (
		out []byte
		err error
	)
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out, err = compressLZ4(data)
	case CompressionZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, tag, nil
}

// decompress reverses compress. size must be the exact uncompressed size.
func decompress(payload []byte, tag CompressionTag, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d", size)
	}
	switch tag {
	case CompressionNone:
		if len(payload) != size {
			return nil, fmt.Errorf("raw payload is %d bytes, expected %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		if size/lz4MaxRatio > len(payload) {
			return nil, fmt.Errorf("lz4 decompress: %d bytes cannot decode to %d", len(payload), size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, min(size, zstdPreallocLimit)))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, out, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return out[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
