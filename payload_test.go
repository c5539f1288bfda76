package keyvault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestPayloadSerializeParse(t *testing.T) {
	key := testKey(t)

	payload, err := Encrypt([]byte("round trip through JSON"), key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	data, err := payload.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize payload: %v", err)
	}

	parsed, err := ParseEncryptedPayload(data)
	if err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}

	if !bytes.Equal(parsed.Ciphertext, payload.Ciphertext) {
		t.Error("Ciphertext changed across serialization")
	}
	if !bytes.Equal(parsed.IV, payload.IV) {
		t.Error("IV changed across serialization")
	}
	if !bytes.Equal(parsed.Tag, payload.Tag) {
		t.Error("Tag changed across serialization")
	}
	if parsed.Version != PayloadVersion {
		t.Errorf("Expected version %d, got %d", PayloadVersion, parsed.Version)
	}

	// The parsed payload must still open.
	plaintext, err := Decrypt(parsed, key)
	if err != nil {
		t.Fatalf("Failed to decrypt parsed payload: %v", err)
	}
	if string(plaintext) != "round trip through JSON" {
		t.Errorf("Unexpected plaintext %q", plaintext)
	}
}

// The wire form carries byte fields as base64 text, never raw bytes.
func TestPayloadWireEncoding(t *testing.T) {
	key := testKey(t)

	payload, err := Encrypt([]byte("wire format check"), key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	data, err := payload.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize payload: %v", err)
	}

	var wire map[string]interface{}
	if err = json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Serialized payload is not valid JSON: %v", err)
	}

	for _, field := range []string{"ciphertext", "iv", "tag"} {
		encoded, ok := wire[field].(string)
		if !ok {
			t.Fatalf("Field %q is not a JSON string", field)
		}
		if _, err = base64.StdEncoding.DecodeString(encoded); err != nil {
			t.Errorf("Field %q is not valid base64: %v", field, err)
		}
	}
	if wire["algorithm"] != AlgorithmAESGCM {
		t.Errorf("Expected algorithm %q, got %v", AlgorithmAESGCM, wire["algorithm"])
	}
}

func TestParseEncryptedPayloadRejectsMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"not json", "not a payload"},
		{"bad base64", `{"ciphertext":"@@","iv":"","tag":"","algorithm":"AES-256-GCM","version":1}`},
		{"short iv", `{"ciphertext":"YWJj","iv":"YWJj","tag":"YWJjZGVmZ2hpamtsbW5vcA==","algorithm":"AES-256-GCM","version":1}`},
		{"short tag", `{"ciphertext":"YWJj","iv":"YWJjZGVmZ2hpamts","tag":"YWJj","algorithm":"AES-256-GCM","version":1}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEncryptedPayload([]byte(tc.data)); err == nil {
				t.Errorf("Expected error parsing %s, got none", tc.name)
			}
		})
	}
}

func TestDecryptNilPayload(t *testing.T) {
	key := testKey(t)
	if _, err := Decrypt(nil, key); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Expected ErrDecryptionFailed for nil payload, got %v", err)
	}
}
