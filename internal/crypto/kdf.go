// Package crypto hashes the admin credential so the daemon never holds the
// arbiter secret in clear.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	keyLen       = 32 // 256 bits
	saltLen      = 32
)

// DeriveKey stretches a secret with Argon2id.
func DeriveKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, keyLen)
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() []byte {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return salt
}

// HashSecret returns salt||hash for storage.
func HashSecret(secret string) []byte {
	salt := GenerateSalt()
	hash := DeriveKey(secret, salt)
	result := make([]byte, saltLen+keyLen)
	copy(result[:saltLen], salt)
	copy(result[saltLen:], hash)
	return result
}

// VerifySecret checks a secret against a stored salt||hash in constant time.
func VerifySecret(secret string, stored []byte) bool {
	if len(stored) < saltLen+keyLen {
		return false
	}
	salt := stored[:saltLen]
	hash := stored[saltLen:]
	computed := DeriveKey(secret, salt)
	return hmac.Equal(hash, computed)
}
