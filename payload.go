package keyvault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// PayloadVersion identifies the current encrypted payload format.
	PayloadVersion = 1

	// AlgorithmAESGCM is the algorithm tag stamped on every payload
	// produced by Encrypt.
	AlgorithmAESGCM = "AES-256-GCM"

	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// EncryptedPayload is the result of a single AEAD encryption operation.
//
// The ciphertext and authentication tag are one authenticated unit that the
// cipher emits together; they are carried as separate fields for storage
// compatibility and reunited, in the same order they were split, before
// decryption. The IV is freshly random for every encryption and must never
// be reused with the same key.
//
// All byte fields are base64-encoded when the payload is serialized to JSON,
// which is the canonical transport encoding for persisting payloads as text.
// A serialized payload contains no secret material and is safe to store or
// transmit.
type EncryptedPayload struct {
	Ciphertext []byte `json:"-"`
	IV         []byte `json:"-"`
	Tag        []byte `json:"-"`
	Algorithm  string `json:"algorithm"`
	Version    int    `json:"version"`
}

// payloadJSON is the wire form of EncryptedPayload with base64 text fields.
type payloadJSON struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Algorithm  string `json:"algorithm"`
	Version    int    `json:"version"`
}

// MarshalJSON encodes the payload with base64 byte fields.
func (p *EncryptedPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadJSON{
		Ciphertext: base64.StdEncoding.EncodeToString(p.Ciphertext),
		IV:         base64.StdEncoding.EncodeToString(p.IV),
		Tag:        base64.StdEncoding.EncodeToString(p.Tag),
		Algorithm:  p.Algorithm,
		Version:    p.Version,
	})
}

// UnmarshalJSON decodes a payload serialized by MarshalJSON.
func (p *EncryptedPayload) UnmarshalJSON(data []byte) error {
	var wire payloadJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to parse encrypted payload: %w", err)
	}

	var err error
	if p.Ciphertext, err = base64.StdEncoding.DecodeString(wire.Ciphertext); err != nil {
		return fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if p.IV, err = base64.StdEncoding.DecodeString(wire.IV); err != nil {
		return fmt.Errorf("invalid iv encoding: %w", err)
	}
	if p.Tag, err = base64.StdEncoding.DecodeString(wire.Tag); err != nil {
		return fmt.Errorf("invalid tag encoding: %w", err)
	}
	p.Algorithm = wire.Algorithm
	p.Version = wire.Version
	return nil
}

// Serialize renders the payload as its canonical JSON text form.
func (p *EncryptedPayload) Serialize() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize encrypted payload: %w", err)
	}
	return data, nil
}

// ParseEncryptedPayload parses a payload previously produced by Serialize.
// It validates the structural invariants (nonce and tag lengths) so that
// malformed data is rejected before it ever reaches the cipher.
func ParseEncryptedPayload(data []byte) (*EncryptedPayload, error) {
	var p EncryptedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *EncryptedPayload) validate() error {
	if len(p.IV) != NonceSize {
		return fmt.Errorf("%w: bad iv length %d", ErrDecryptionFailed, len(p.IV))
	}
	if len(p.Tag) != TagSize {
		return fmt.Errorf("%w: bad tag length %d", ErrDecryptionFailed, len(p.Tag))
	}
	// An empty ciphertext is legal: sealing an empty plaintext emits only
	// the tag. Authentication still rejects anything forged.
	return nil
}
