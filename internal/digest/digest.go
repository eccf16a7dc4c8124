// Package digest fingerprints file content for change detection.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Algorithm names a content hash function. Both produce 256-bit digests.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Default is used for manifests that do not record an algorithm.
const Default = SHA256

// Parse resolves an algorithm name. The empty string maps to Default so
// manifests written before the field existed keep comparing correctly.
func Parse(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "":
		return Default, nil
	case SHA256, BLAKE3:
		return Algorithm(name), nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (must be sha256 or blake3)", name)
	}
}

// Sum returns the lowercase hex digest of content.
func (a Algorithm) Sum(content []byte) string {
	switch a {
	case BLAKE3:
		sum := blake3.Sum256(content)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(content)
		return hex.EncodeToString(sum[:])
	}
}

// SumString is Sum for generated text.
func (a Algorithm) SumString(content string) string {
	return a.Sum([]byte(content))
}

func (a Algorithm) String() string {
	if a == "" {
		return string(Default)
	}
	return string(a)
}
