package ir

import "fmt"

// ChecksumType selects how drift is detected for a file resource.
type ChecksumType string

const (
	ChecksumMD5        ChecksumType = "md5"
	ChecksumMD5Lite    ChecksumType = "md5lite"
	ChecksumSHA1       ChecksumType = "sha1"
	ChecksumSHA1Lite   ChecksumType = "sha1lite"
	ChecksumSHA256     ChecksumType = "sha256"
	ChecksumSHA256Lite ChecksumType = "sha256lite"
	ChecksumBLAKE3     ChecksumType = "blake3"
	ChecksumCtime      ChecksumType = "ctime"
	ChecksumMtime      ChecksumType = "mtime"
	ChecksumNone       ChecksumType = "none"
)

// DefaultChecksum is used when a declaration names no strategy.
const DefaultChecksum = ChecksumSHA256

// ValidChecksumTypes defines the allowed checksum strategies.
var ValidChecksumTypes = map[ChecksumType]bool{
	ChecksumMD5:        true,
	ChecksumMD5Lite:    true,
	ChecksumSHA1:       true,
	ChecksumSHA1Lite:   true,
	ChecksumSHA256:     true,
	ChecksumSHA256Lite: true,
	ChecksumBLAKE3:     true,
	ChecksumCtime:      true,
	ChecksumMtime:      true,
	ChecksumNone:       true,
}

// ParseChecksumType validates a declared checksum strategy. The empty string
// yields DefaultChecksum.
func ParseChecksumType(s string) (ChecksumType, error) {
	if s == "" {
		return DefaultChecksum, nil
	}
	t := ChecksumType(s)
	if !ValidChecksumTypes[t] {
		return "", fmt.Errorf("invalid checksum type %q", s)
	}
	return t, nil
}

// IsTimeBased reports whether t fingerprints filesystem timestamps rather
// than content.
func (t ChecksumType) IsTimeBased() bool {
	return t == ChecksumCtime || t == ChecksumMtime
}

// IsContentHash reports whether t fingerprints file content.
func (t ChecksumType) IsContentHash() bool {
	return ValidChecksumTypes[t] && !t.IsTimeBased() && t != ChecksumNone
}
