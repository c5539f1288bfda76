package keyvault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
)

// KeyBundle is the durable per-user key record: a data encryption key (DEK)
// wrapped under a password-derived master key, the derivation salt, format
// version and timestamps. This is what persists in the backing store.
//
// The bundle contains no secret in recoverable plaintext. The DEK is
// generated once, at InitializeUserKeys time, and is stable across password
// rotations - only its wrapping changes - so data encrypted under it stays
// valid for the lifetime of the account.
//
// INVARIANTS:
//   - EncryptedDEK decrypts to exactly 32 bytes only under the key derived
//     from the correct password and Salt
//   - Version increments on every rotation or recovery
//   - Recovery, when present, wraps the same DEK bytes under an
//     independently derived key
type KeyBundle struct {
	UserID       string            `json:"user_id"`
	EncryptedDEK *EncryptedPayload `json:"encrypted_dek"`
	Salt         []byte            `json:"salt"`
	CreatedAt    time.Time         `json:"created_at"`
	RotatedAt    *time.Time        `json:"rotated_at,omitempty"`
	Version      int               `json:"version"`
	Recovery     *RecoveryWrap     `json:"recovery,omitempty"`
}

// Serialize renders the bundle as JSON, safe to persist or transmit.
func (b *KeyBundle) Serialize() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize key bundle: %w", err)
	}
	return data, nil
}

// ParseKeyBundle parses a bundle previously produced by Serialize.
func ParseKeyBundle(data []byte) (*KeyBundle, error) {
	var b KeyBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse key bundle: %w", err)
	}
	if b.EncryptedDEK == nil {
		return nil, fmt.Errorf("invalid key bundle: missing encrypted DEK")
	}
	return &b, nil
}

// InitializeUserKeys creates the key material for a new user: a fresh
// random 256-bit DEK, wrapped under a master key derived from the password
// with a fresh salt.
//
// The master key exists only for the duration of this call and is wiped
// before returning; no API ever exposes it afterwards.
//
// Calling this twice for the same live user without discarding the old
// bundle orphans every value encrypted under the old DEK. That discipline
// belongs to the caller; it is not enforced here.
func InitializeUserKeys(userID, password string) (*KeyBundle, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	dek, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate data encryption key: %w", err)
	}
	defer memguard.WipeBytes(dek)

	derived, err := DeriveKey(password, nil)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(derived.Key)

	wrapped, err := Encrypt(dek, derived.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data encryption key: %w", err)
	}

	return &KeyBundle{
		UserID:       userID,
		EncryptedDEK: wrapped,
		Salt:         derived.Salt,
		CreatedAt:    time.Now().UTC(),
		Version:      1,
	}, nil
}

// RotateUserKeys re-wraps the bundle's DEK under a master key derived from
// newPassword with a fresh salt. The DEK bytes themselves are untouched, so
// everything encrypted before the rotation remains decryptable afterwards.
//
// The old password must unwrap the current bundle first; a wrong password
// surfaces as ErrUnlockFailed and leaves the bundle unchanged. An existing
// recovery wrapping is carried over verbatim - it wraps the same DEK and
// stays valid across rotations.
//
// The returned bundle has an incremented Version and a fresh RotatedAt
// stamp; the input bundle is not modified.
func RotateUserKeys(oldPassword, newPassword string, bundle *KeyBundle) (*KeyBundle, error) {
	if bundle == nil {
		return nil, fmt.Errorf("key bundle cannot be nil")
	}

	dek, err := unwrapDEK(bundle, oldPassword)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(dek)

	derived, err := DeriveKey(newPassword, nil)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(derived.Key)

	rewrapped, err := Encrypt(dek, derived.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to re-wrap data encryption key: %w", err)
	}

	rotatedAt := time.Now().UTC()
	return &KeyBundle{
		UserID:       bundle.UserID,
		EncryptedDEK: rewrapped,
		Salt:         derived.Salt,
		CreatedAt:    bundle.CreatedAt,
		RotatedAt:    &rotatedAt,
		Version:      bundle.Version + 1,
		Recovery:     bundle.Recovery,
	}, nil
}

// unwrapDEK derives the master key for the bundle's salt and decrypts the
// wrapped DEK. Every failure mode collapses into ErrUnlockFailed: the
// caller learns that the password did not open the bundle, nothing more.
// The caller owns the returned DEK bytes and must wipe them.
func unwrapDEK(bundle *KeyBundle, password string) ([]byte, error) {
	derived, err := DeriveKey(password, bundle.Salt)
	if err != nil {
		return nil, ErrUnlockFailed
	}
	defer memguard.WipeBytes(derived.Key)

	dek, err := Decrypt(bundle.EncryptedDEK, derived.Key)
	if err != nil {
		return nil, ErrUnlockFailed
	}
	if len(dek) != KeySize {
		memguard.WipeBytes(dek)
		return nil, ErrUnlockFailed
	}
	return dek, nil
}
