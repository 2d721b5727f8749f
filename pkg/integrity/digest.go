package integrity

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAlgorithm identifies the digest function used for manifest content
const HashAlgorithm = "SHA-256"

// Digest returns the SHA-256 digest of b as a lowercase hex string
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
