package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/roach88/keel/internal/ir"
)

// LiteSize is the number of leading bytes hashed by the lite variants.
const LiteSize = 512

type hashSpec struct {
	newHash func() hash.Hash
	lite    bool
}

var hashes = map[ir.ChecksumType]hashSpec{
	ir.ChecksumMD5:        {newHash: md5.New},
	ir.ChecksumMD5Lite:    {newHash: md5.New, lite: true},
	ir.ChecksumSHA1:       {newHash: sha1.New},
	ir.ChecksumSHA1Lite:   {newHash: sha1.New, lite: true},
	ir.ChecksumSHA256:     {newHash: sha256.New},
	ir.ChecksumSHA256Lite: {newHash: sha256.New, lite: true},
	ir.ChecksumBLAKE3:     {newHash: func() hash.Hash { return blake3.New() }},
}

// Format builds a fingerprint from a strategy and its value.
func Format(t ir.ChecksumType, value string) string {
	return "{" + string(t) + "}" + value
}

// Parse splits a fingerprint into its strategy and value.
func Parse(fingerprint string) (ir.ChecksumType, string, error) {
	if !strings.HasPrefix(fingerprint, "{") {
		return "", "", fmt.Errorf("malformed fingerprint %q: missing {type} prefix", fingerprint)
	}
	end := strings.IndexByte(fingerprint, '}')
	if end < 0 {
		return "", "", fmt.Errorf("malformed fingerprint %q: unterminated type", fingerprint)
	}
	t := ir.ChecksumType(fingerprint[1:end])
	if !ir.ValidChecksumTypes[t] {
		return "", "", fmt.Errorf("malformed fingerprint %q: unknown type %q", fingerprint, t)
	}
	return t, fingerprint[end+1:], nil
}

// Sum fingerprints the content read from r with a content-hash strategy.
// Lite strategies stop reading after LiteSize bytes.
func Sum(t ir.ChecksumType, r io.Reader) (string, error) {
	spec, ok := hashes[t]
	if !ok {
		return "", fmt.Errorf("checksum %q does not hash content", t)
	}
	if spec.lite {
		r = io.LimitReader(r, LiteSize)
	}
	h := spec.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return Format(t, hex.EncodeToString(h.Sum(nil))), nil
}

// SumBytes is Sum over an in-memory buffer.
func SumBytes(t ir.ChecksumType, data []byte) (string, error) {
	return Sum(t, bytes.NewReader(data))
}

// SumFile fingerprints the file at path with any strategy. Time strategies
// read the file's timestamp; none returns the constant "{none}" fingerprint
// but still requires the file to exist.
//
// A missing file yields an error satisfying errors.Is(err, os.ErrNotExist).
func SumFile(t ir.ChecksumType, path string) (string, error) {
	switch {
	case t == ir.ChecksumNone:
		if _, err := os.Lstat(path); err != nil {
			return "", err
		}
		return Format(t, ""), nil
	case t.IsTimeBased():
		ts, err := Timestamp(t, path)
		if err != nil {
			return "", err
		}
		return FormatTime(t, ts), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fp, err := Sum(t, f)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return fp, nil
}

// Timestamp returns the timestamp a time strategy fingerprints.
func Timestamp(t ir.ChecksumType, path string) (time.Time, error) {
	switch t {
	case ir.ChecksumMtime:
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		return info.ModTime(), nil
	case ir.ChecksumCtime:
		return statCtime(path)
	default:
		return time.Time{}, fmt.Errorf("checksum %q is not time based", t)
	}
}

// FormatTime builds a time-strategy fingerprint.
func FormatTime(t ir.ChecksumType, ts time.Time) string {
	return Format(t, ts.UTC().Format(time.RFC3339Nano))
}

// InSync reports whether observed satisfies expected under strategy t.
//
// Content hashes match on equality. Time strategies are in sync when the
// observed timestamp is not older than the expected one, so a touched
// source (newer expected time) is out of sync while replaying an older
// catalog is not. The none strategy is always in sync.
//
// Fingerprints of another strategy, or that fail to parse, are never in sync.
func InSync(t ir.ChecksumType, expected, observed string) bool {
	if t == ir.ChecksumNone {
		return true
	}
	if expected == "" || observed == "" {
		return false
	}
	if !t.IsTimeBased() {
		return expected == observed
	}

	et, ev, err := Parse(expected)
	if err != nil || et != t {
		return false
	}
	ot, ov, err := Parse(observed)
	if err != nil || ot != t {
		return false
	}
	want, err := time.Parse(time.RFC3339Nano, ev)
	if err != nil {
		return false
	}
	have, err := time.Parse(time.RFC3339Nano, ov)
	if err != nil {
		return false
	}
	return !have.Before(want)
}
