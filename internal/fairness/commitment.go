// Package fairness implements the commit-reveal scheme and the HMAC-SHA256
// outcome derivation that lets any party recompute a bet's result from the
// published seeds.
package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// saltLen is the random salt length in bytes.
const saltLen = 16

// Commitment binds a secret before it is revealed: Hash = SHA256(secret ++ salt).
// The hash is published immediately; the salt stays private until reveal.
type Commitment struct {
	Hash [32]byte
	Salt []byte
}

// HashHex returns the hex-encoded commitment hash.
func (c Commitment) HashHex() string {
	return hex.EncodeToString(c.Hash[:])
}

// Commit generates a random salt and commits to secret.
func Commit(secret []byte) (Commitment, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Commitment{}, fmt.Errorf("fairness: generating salt: %w", err)
	}
	return CommitWithSalt(secret, salt), nil
}

// CommitWithSalt is like Commit but uses the supplied salt (useful for
// deterministic testing and for recomputing a published commitment).
func CommitWithSalt(secret, salt []byte) Commitment {
	h := sha256.New()
	h.Write(secret)
	h.Write(salt)

	c := Commitment{Salt: append([]byte(nil), salt...)}
	copy(c.Hash[:], h.Sum(nil))
	return c
}

// VerifyCommitment reports whether secret and the commitment's salt reproduce
// its hash.
func VerifyCommitment(c Commitment, secret []byte) bool {
	got := CommitWithSalt(secret, c.Salt)
	return subtle.ConstantTimeCompare(got.Hash[:], c.Hash[:]) == 1
}

// GenerateServerSeed returns 32 random bytes as 64 hex characters.
func GenerateServerSeed() (string, error) {
	return randomHex(32)
}

// GenerateClientSeed returns 16 random bytes as 32 hex characters. Bettors
// may replace it with a seed of their own.
func GenerateClientSeed() (string, error) {
	return randomHex(16)
}

// HashServerSeed returns the hex SHA-256 of a server seed. This is the value
// shown to the bettor before the bet.
func HashServerSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// VerifyServerSeed reports whether a revealed seed matches its published hash.
func VerifyServerSeed(serverSeed, hashed string) bool {
	got := HashServerSeed(serverSeed)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hashed)) == 1
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("fairness: reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
