package keyvault

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

// Recovery key format: five dash-separated groups of five characters drawn
// from a 32-character alphanumeric alphabet with the visually ambiguous
// glyphs removed (no 0/O, no 1/I). 25 characters at 5 bits each gives 125
// bits of entropy - enough that the wrapping key derived from the secret
// does not need a deliberately slow KDF.
const (
	recoveryAlphabet   = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	recoveryGroupLen   = 5
	recoveryGroupCount = 5
)

// Argon2id parameters for deriving the recovery wrapping key. The recovery
// secret is machine-generated and high-entropy, so these stay at the
// moderate, non-interactive settings.
const (
	recoveryArgonTime    uint32 = 4
	recoveryArgonMemory  uint32 = 64 * 1024
	recoveryArgonThreads uint8  = 4
)

// RecoveryWrap is the alternate wrapping of a bundle's DEK under a key
// derived from the recovery secret. It is stored inside the bundle and,
// like the bundle itself, contains no recoverable plaintext secret.
type RecoveryWrap struct {
	EncryptedDEK *EncryptedPayload `json:"encrypted_dek"`
	Salt         []byte            `json:"salt"`
	CreatedAt    time.Time         `json:"created_at"`
}

// GenerateRecoveryKey produces a recovery key for the bundle: it unwraps
// the DEK with the password, generates a fresh high-entropy recovery
// secret, wraps the same DEK bytes under a key derived from that secret,
// and attaches the wrapping to the bundle in place.
//
// The returned string (XXXXX-XXXXX-XXXXX-XXXXX-XXXXX) is shown to the user
// exactly once for transcription; it is not stored anywhere and cannot be
// re-derived. Generating a new recovery key replaces any previous wrapping.
//
// Fails with ErrUnlockFailed if the password does not open the bundle.
func GenerateRecoveryKey(bundle *KeyBundle, password string) (string, error) {
	if bundle == nil {
		return "", fmt.Errorf("key bundle cannot be nil")
	}

	dek, err := unwrapDEK(bundle, password)
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(dek)

	secret, err := newRecoverySecret()
	if err != nil {
		return "", err
	}

	salt := make([]byte, SaltSize)
	if _, err = rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate recovery salt: %w", err)
	}

	wrappingKey := deriveRecoveryKey(secret, salt)
	defer memguard.WipeBytes(wrappingKey)

	wrapped, err := Encrypt(dek, wrappingKey)
	if err != nil {
		return "", fmt.Errorf("failed to wrap data encryption key: %w", err)
	}

	bundle.Recovery = &RecoveryWrap{
		EncryptedDEK: wrapped,
		Salt:         salt,
		CreatedAt:    time.Now().UTC(),
	}

	return secret, nil
}

// RecoverWithRecoveryKey rebuilds a bundle for a user who lost their
// password. The recovery key unwraps the recovery wrapping of the DEK; the
// same DEK bytes are then re-wrapped under a master key derived from
// newPassword with a fresh salt.
//
// The returned bundle carries an incremented Version, a fresh RotatedAt
// stamp, and the existing recovery wrapping (the recovery key remains valid
// until a new one is generated). The input bundle is not modified.
//
// Fails with ErrInvalidRecoveryKey if the recovery string is malformed or
// does not unwrap the DEK.
func RecoverWithRecoveryKey(bundle *KeyBundle, recoveryKey, newPassword string) (*KeyBundle, error) {
	if bundle == nil {
		return nil, fmt.Errorf("key bundle cannot be nil")
	}
	if bundle.Recovery == nil {
		return nil, fmt.Errorf("%w: bundle has no recovery wrapping", ErrInvalidRecoveryKey)
	}

	secret, err := normalizeRecoveryKey(recoveryKey)
	if err != nil {
		return nil, err
	}

	wrappingKey := deriveRecoveryKey(secret, bundle.Recovery.Salt)
	defer memguard.WipeBytes(wrappingKey)

	dek, err := Decrypt(bundle.Recovery.EncryptedDEK, wrappingKey)
	if err != nil {
		return nil, ErrInvalidRecoveryKey
	}
	defer memguard.WipeBytes(dek)
	if len(dek) != KeySize {
		return nil, ErrInvalidRecoveryKey
	}

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

// newRecoverySecret draws 25 characters from the recovery alphabet and
// groups them for human transcription.
func newRecoverySecret() (string, error) {
	raw := make([]byte, recoveryGroupLen*recoveryGroupCount)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate recovery secret: %w", err)
	}

	groups := make([]string, 0, recoveryGroupCount)
	var group strings.Builder
	for i, b := range raw {
		group.WriteByte(recoveryAlphabet[int(b)%len(recoveryAlphabet)])
		if (i+1)%recoveryGroupLen == 0 {
			groups = append(groups, group.String())
			group.Reset()
		}
	}
	return strings.Join(groups, "-"), nil
}

// normalizeRecoveryKey validates the transcribed form: dashes and spaces
// are ignored, lowercase is folded up, and the result must be exactly 25
// characters of the recovery alphabet.
func normalizeRecoveryKey(input string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(input))
	if len(cleaned) != recoveryGroupLen*recoveryGroupCount {
		return "", ErrInvalidRecoveryKey
	}
	for _, r := range cleaned {
		if !strings.ContainsRune(recoveryAlphabet, r) {
			return "", ErrInvalidRecoveryKey
		}
	}

	groups := make([]string, 0, recoveryGroupCount)
	for i := 0; i < len(cleaned); i += recoveryGroupLen {
		groups = append(groups, cleaned[i:i+recoveryGroupLen])
	}
	return strings.Join(groups, "-"), nil
}

// deriveRecoveryKey stretches the recovery secret into a 256-bit wrapping
// key with Argon2id. Deterministic for identical secret and salt.
func deriveRecoveryKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt,
		recoveryArgonTime, recoveryArgonMemory, recoveryArgonThreads, KeySize)
}
