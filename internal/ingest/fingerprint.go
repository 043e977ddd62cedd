// Package ingest turns raw trial balance extracts into normalized records:
// fingerprinting, table reading, profiling and column mapping.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex sha256 digest of content
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
