package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// SourceHash returns the hex SHA-256 of a script. Logs carry the short form
// so repeated submissions of the same code can be correlated without
// logging the code itself.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// ShortHash truncates a hash for display
func ShortHash(full string) string {
	if len(full) < 12 {
		return full
	}
	return full[:12]
}
