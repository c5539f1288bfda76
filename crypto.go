package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeySize is the required length, in bytes, of every key handled by this
// package: data encryption keys, derived master keys and recovery wrapping
// keys are all 256-bit.
const KeySize = 32

// Encrypt encrypts plaintext under a 256-bit key with AES-256-GCM.
//
// A cryptographically random 12-byte nonce is generated for every call, so
// encrypting identical plaintext twice with the same key yields different
// ciphertext. The GCM authentication tag is split off the sealed output and
// carried as its own payload field; Decrypt reunites the two before opening.
//
// SECURITY PROPERTIES:
//   - Confidentiality and integrity via AEAD (AES-256-GCM, RFC 5116)
//   - Fresh random nonce per operation; never derived from the plaintext
//   - No additional authenticated data is used
//
// Returns ErrInvalidKeySize if the key is not exactly 32 bytes. The
// plaintext is not modified and no I/O is performed.
func Encrypt(plaintext, key []byte) (*EncryptedPayload, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal emits ciphertext||tag; keep the two as separate payload fields.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return &EncryptedPayload{
		Ciphertext: sealed[:split],
		IV:         nonce,
		Tag:        sealed[split:],
		Algorithm:  AlgorithmAESGCM,
		Version:    PayloadVersion,
	}, nil
}

// EncryptString encrypts a UTF-8 string. Convenience wrapper over Encrypt.
func EncryptString(plaintext string, key []byte) (*EncryptedPayload, error) {
	return Encrypt([]byte(plaintext), key)
}

// EncryptJSON canonically serializes v to JSON and encrypts the result.
// This is the path non-string values take through the storage wrapper.
func EncryptJSON(v interface{}, key []byte) (*EncryptedPayload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value for encryption: %w", err)
	}
	return Encrypt(data, key)
}

// Decrypt opens an encrypted payload with a 256-bit key and returns the
// plaintext.
//
// Any authentication failure - wrong key, tampered ciphertext or tag,
// corrupted nonce - surfaces as ErrDecryptionFailed with no further
// distinction. Collapsing the failure modes is intentional: a caller (or an
// attacker observing a caller) must not be able to tell a wrong key from
// tampered data.
//
// Returns ErrInvalidKeySize if the key is not exactly 32 bytes.
func Decrypt(payload *EncryptedPayload, key []byte) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrDecryptionFailed)
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// Reunite ciphertext and tag in the order Seal produced them.
	sealed := make([]byte, 0, len(payload.Ciphertext)+len(payload.Tag))
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.Tag...)

	plaintext, err := aead.Open(nil, payload.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// DecryptString decrypts a payload produced by EncryptString.
func DecryptString(payload *EncryptedPayload, key []byte) (string, error) {
	plaintext, err := Decrypt(payload, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Hash returns the SHA-256 digest of data as a 64-character hex string.
// Deterministic: identical input always yields an identical digest.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifyHash recomputes the digest of data and compares it with the
// expected hex digest in constant time.
func VerifyHash(data, expected string) bool {
	return hmac.Equal([]byte(Hash(data)), []byte(expected))
}

// GenerateKey produces a fresh cryptographically random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// ExportKey serializes raw key bytes to base64 for transfer between
// contexts. This is the only place key material is intentionally
// serialized; the resulting string is exactly as sensitive as the key
// itself and must be handled accordingly.
func ExportKey(key []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKeySize
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ImportKey decodes a key previously produced by ExportKey.
func ImportKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}
