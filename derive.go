package keyvault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the length of the random salt generated for password
	// derivation.
	SaltSize = 32

	// DerivationIterations is the fixed PBKDF2 iteration count. It is
	// deliberately high so that derivation costs tens of milliseconds on
	// commodity hardware, which is the point: the same work factor an
	// attacker pays per guess in an offline attack.
	//
	// Changing this value invalidates every existing wrapping; it is part
	// of the bundle format contract.
	DerivationIterations = 100000
)

// DerivedKey is the output of a password derivation: the 256-bit key and
// the salt it was derived with. The salt is not secret and is persisted
// alongside the wrapped key; the key must never be persisted or logged.
type DerivedKey struct {
	Key  []byte
	Salt []byte
}

// DeriveKey stretches a password into a 256-bit master key using
// PBKDF2-SHA256 with a fixed iteration count.
//
// When salt is nil a fresh cryptographically random 32-byte salt is
// generated; otherwise the supplied salt is used verbatim. Derivation is
// strictly deterministic for identical password and salt - that property is
// what makes unlocking a stored bundle possible, and it is tested
// explicitly.
//
// The result is intentionally never cached: every call recomputes the key,
// trading CPU for the guarantee that no stale derivation can outlive a
// password change.
func DeriveKey(password string, salt []byte) (*DerivedKey, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(password), salt, DerivationIterations, KeySize, sha256.New)

	return &DerivedKey{
		Key:  key,
		Salt: salt,
	}, nil
}
