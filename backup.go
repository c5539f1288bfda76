package keyvault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// BundleContainer is the passphrase-armored export format for a KeyBundle:
// the serialized bundle encrypted under a passphrase-derived key, wrapped
// with enough metadata to validate and import it elsewhere. The container
// is plain JSON, safe to store or transmit; without the passphrase it
// reveals only the user id and timestamps.
type BundleContainer struct {
	UserID           string    `json:"user_id"`
	ExportedAt       time.Time `json:"exported_at"`
	FormatVersion    string    `json:"format_version"`
	EncryptionMethod string    `json:"encryption_method"`
	Checksum         string    `json:"checksum"`
	EncryptedData    string    `json:"encrypted_data"`
}

const bundleContainerVersion = "1.0"
const bundleEncryptionMethod = "chacha20poly1305+pbkdf2"

// ExportBundle serializes a bundle and seals it under a passphrase for
// transfer between contexts (device migration, offline escrow).
//
// The sealed blob is ChaCha20-Poly1305 over a PBKDF2-derived key with a
// fresh random salt, laid out as salt || nonce || ciphertext and base64
// encoded. A SHA-256 checksum of the sealed blob travels alongside so
// transport corruption can be distinguished from a wrong passphrase before
// decryption is even attempted.
func ExportBundle(bundle *KeyBundle, passphrase string) ([]byte, error) {
	if bundle == nil {
		return nil, fmt.Errorf("key bundle cannot be nil")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("export passphrase cannot be empty")
	}

	plaintext, err := bundle.Serialize()
	if err != nil {
		return nil, err
	}

	sealed, err := sealWithPassphrase(plaintext, passphrase)
	if err != nil {
		return nil, err
	}

	container := BundleContainer{
		UserID:           bundle.UserID,
		ExportedAt:       time.Now().UTC(),
		FormatVersion:    bundleContainerVersion,
		EncryptionMethod: bundleEncryptionMethod,
		Checksum:         checksumHex(sealed),
		EncryptedData:    base64.StdEncoding.EncodeToString(sealed),
	}

	data, err := json.MarshalIndent(container, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bundle container: %w", err)
	}
	return data, nil
}

// ImportBundle opens a container produced by ExportBundle and returns the
// bundle inside. The checksum is verified before decryption; a checksum
// mismatch means transport corruption, while a decryption failure after a
// valid checksum means a wrong passphrase.
func ImportBundle(data []byte, passphrase string) (*KeyBundle, error) {
	var container BundleContainer
	if err := json.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("failed to parse bundle container: %w", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(container.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("invalid container encoding: %w", err)
	}

	if container.Checksum != checksumHex(sealed) {
		return nil, fmt.Errorf("bundle container checksum mismatch: data corrupted in transit")
	}

	plaintext, err := openWithPassphrase(sealed, passphrase)
	if err != nil {
		return nil, err
	}

	return ParseKeyBundle(plaintext)
}

// sealWithPassphrase encrypts data under a passphrase-derived key:
// salt(32) || nonce(12) || ciphertext+tag.
func sealWithPassphrase(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, DerivationIterations, KeySize, sha256.New)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, data, nil)

	sealed := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	sealed = append(sealed, ciphertext...)
	return sealed, nil
}

// openWithPassphrase reverses sealWithPassphrase.
func openWithPassphrase(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < SaltSize+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: sealed data too short", ErrDecryptionFailed)
	}

	salt := sealed[:SaltSize]
	nonce := sealed[SaltSize : SaltSize+chacha20poly1305.NonceSize]
	ciphertext := sealed[SaltSize+chacha20poly1305.NonceSize:]

	key := pbkdf2.Key([]byte(passphrase), salt, DerivationIterations, KeySize, sha256.New)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func checksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
