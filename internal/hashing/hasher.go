package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"trust-service/internal/util"
)

var ErrInvalidHash = errors.New("invalid hash format")

// Hasher hashes verification codes before they are persisted, so a leaked
// record never contains a usable code. Parameters are fixed; codes are
// short-lived and low value, so the cheap argon2id profile is enough.
type Hasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
	pepper      string
}

func NewHasher() *Hasher {
	return &Hasher{
		memory:      16 * 1024,
		iterations:  2,
		parallelism: 1,
		saltLength:  16,
		keyLength:   32,
		pepper:      util.GetEnv("HASH_PEPPER", ""),
	}
}

// HashCode returns the argon2id hash of a verification code alongside the
// salt that produced it, both base64 encoded.
func (h *Hasher) HashCode(code string) (hash, salt string, err error) {
	saltBytes := make([]byte, h.saltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(code+h.pepper), saltBytes, h.iterations, h.memory, h.parallelism, h.keyLength)

	return base64.RawURLEncoding.EncodeToString(key),
		base64.RawURLEncoding.EncodeToString(saltBytes),
		nil
}

// VerifyCode recomputes the hash for a candidate code and compares it in
// constant time against the stored value.
func (h *Hasher) VerifyCode(candidate, hash, salt string) (bool, error) {
	saltBytes, err := base64.RawURLEncoding.DecodeString(salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey([]byte(candidate+h.pepper), saltBytes, h.iterations, h.memory, h.parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// PhoneHash produces the deterministic lookup key for a phone number.
func PhoneHash(phone string) string {
	sum := sha256.Sum256([]byte(util.NormalizePhone(phone)))
	return hex.EncodeToString(sum[:])
}
