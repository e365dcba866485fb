package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"
)

const oneTimeTokenBytes = 32

// OneTimeToken is the single-use verification/reset credential. Plain is
// transmitted exactly once (in the emailed link); only Hash and ExpiresAt are
// persisted.
type OneTimeToken struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

func NewOneTimeToken(ttl time.Duration) (OneTimeToken, error) {
	b := make([]byte, oneTimeTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return OneTimeToken{}, err
	}
	plain := hex.EncodeToString(b)
	return OneTimeToken{
		Plain:     plain,
		Hash:      HashOneTimeToken(plain),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

func HashOneTimeToken(plain string) string {
	h := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(h[:])
}

// MatchOneTimeToken recomputes the hash of the presented plaintext and
// compares it constant-time against the stored hash. A matching hash past
// expiry fails; both checks are mandatory.
func MatchOneTimeToken(plain, storedHash string, storedExpiry time.Time, now time.Time) bool {
	if storedHash == "" {
		return false
	}
	if !now.Before(storedExpiry) {
		return false
	}
	computed := HashOneTimeToken(plain)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

func NewRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
