package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the hex SHA-256 digest of data, used to key the
// understanding tier so a content change invalidates prior understanding.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FetchKey builds the fetch-tier cache key for a normalized URL.
func FetchKey(normalizedURL string) string {
	return "fetch:" + normalizedURL
}

// UnderstandingKey builds the understanding-tier key. Distinct checksums for
// the same URL never collide, so stale understanding is unreachable once the
// page content changes.
func UnderstandingKey(normalizedURL, checksum string) string {
	return "understand:" + normalizedURL + "#" + checksum
}
