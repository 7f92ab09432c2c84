package canonical

import (
	"crypto/sha256"
	"encoding/hex"
)

// IdentifierLen is the length of a content identifier in characters:
// a SHA-256 digest, hex encoded.
const IdentifierLen = 64

// Identify derives the content identifier of a form: the SHA-256 digest of
// its canonical serialization, as 64 lowercase hex characters. It is fully
// deterministic; identical forms always yield identical identifiers.
func Identify(f Form) string {
	sum := sha256.Sum256(f.Encode())
	return hex.EncodeToString(sum[:])
}

// IsIdentifier reports whether s has the shape of a content identifier:
// exactly 64 lowercase hex characters. It says nothing about whether any
// record with that identifier exists.
func IsIdentifier(s string) bool {
	if len(s) != IdentifierLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
