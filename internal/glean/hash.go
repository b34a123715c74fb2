package glean

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUID returns the SHA-256 digest of uid as lowercase hex. Raw account ids
// never leave the process; only this digest is shipped. Callers must not hash
// an empty uid: an unresolved id stays "" in the record.
func HashUID(uid string) string {
	sum := sha256.Sum256([]byte(uid))
	return hex.EncodeToString(sum[:])
}
