package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashBytes computes the SHA-256 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashString computes the SHA-256 hash of a string and returns it as a hex string.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// Fingerprint computes the BLAKE3 hash of markup bytes as a hex string.
// Render caches and the render store are keyed by this value.
func Fingerprint(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FingerprintString is Fingerprint for string input.
func FingerprintString(s string) string {
	return Fingerprint([]byte(s))
}

// IsFingerprint reports whether s looks like a hex BLAKE3-256 digest.
func IsFingerprint(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
