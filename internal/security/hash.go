package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken derives the server-side trace of a refresh token. The raw
// token never hits the database; equality checks on refresh compare hashes.
func HashRefreshToken(raw, pepper string) string {
	h := sha256.Sum256([]byte(raw + ":" + pepper))
	return hex.EncodeToString(h[:])
}
