package keyvault

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
)

var recoveryKeyPattern = regexp.MustCompile(`^[2-9A-HJ-NP-Z]{5}(-[2-9A-HJ-NP-Z]{5}){4}$`)

func TestGenerateRecoveryKey(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	secret, err := GenerateRecoveryKey(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to generate recovery key: %v", err)
	}

	if !recoveryKeyPattern.MatchString(secret) {
		t.Errorf("Recovery key %q doesn't match the expected format", secret)
	}
	if bundle.Recovery == nil {
		t.Fatal("Bundle has no recovery wrapping after generation")
	}
	if bundle.Recovery.EncryptedDEK == nil {
		t.Error("Recovery wrapping is missing the wrapped DEK")
	}
	if len(bundle.Recovery.Salt) != SaltSize {
		t.Errorf("Expected %d-byte recovery salt, got %d", SaltSize, len(bundle.Recovery.Salt))
	}
	if bundle.Recovery.CreatedAt.IsZero() {
		t.Error("Recovery wrapping has no timestamp")
	}

	// The password wrapping must be untouched.
	mustUnwrap(t, bundle, testPassword)
}

func TestGenerateRecoveryKeyWrongPassword(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	_, err = GenerateRecoveryKey(bundle, "wrong-password")
	if !errors.Is(err, ErrUnlockFailed) {
		t.Errorf("Expected ErrUnlockFailed, got %v", err)
	}
	if bundle.Recovery != nil {
		t.Error("Failed generation attached a recovery wrapping")
	}
}

// Full lost-password flow: recovery key unwraps the same DEK and rewraps
// it under the new password, so pre-recovery data stays decryptable.
func TestRecoverWithRecoveryKey(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	originalDEK := mustUnwrap(t, bundle, testPassword)

	secret, err := GenerateRecoveryKey(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to generate recovery key: %v", err)
	}

	recovered, err := RecoverWithRecoveryKey(bundle, secret, "BrandNew789!")
	if err != nil {
		t.Fatalf("Failed to recover with recovery key: %v", err)
	}

	if recovered.Version != bundle.Version+1 {
		t.Errorf("Expected version %d after recovery, got %d", bundle.Version+1, recovered.Version)
	}
	if recovered.RotatedAt == nil {
		t.Error("Recovered bundle has no rotation timestamp")
	}
	if recovered.Recovery == nil {
		t.Error("Recovery wrapping was dropped during recovery")
	}

	if !bytes.Equal(mustUnwrap(t, recovered, "BrandNew789!"), originalDEK) {
		t.Error("Recovery changed the DEK")
	}

	// The recovery key stays valid until a new one is generated.
	again, err := RecoverWithRecoveryKey(recovered, secret, "YetAnother000!")
	if err != nil {
		t.Fatalf("Recovery key stopped working after one use: %v", err)
	}
	if !bytes.Equal(mustUnwrap(t, again, "YetAnother000!"), originalDEK) {
		t.Error("Second recovery changed the DEK")
	}
}

// Transcription tolerance: dashes and spacing are cosmetic, case folds up.
func TestRecoverWithRecoveryKeyNormalization(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	secret, err := GenerateRecoveryKey(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to generate recovery key: %v", err)
	}

	variants := []string{
		strings.ReplaceAll(secret, "-", ""),
		strings.ReplaceAll(secret, "-", " "),
		strings.ToLower(secret),
	}

	for _, variant := range variants {
		if _, err = RecoverWithRecoveryKey(bundle, variant, "BrandNew789!"); err != nil {
			t.Errorf("Recovery rejected transcription variant %q: %v", variant, err)
		}
	}
}

func TestRecoverWithRecoveryKeyInvalid(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	// No recovery wrapping configured yet.
	_, err = RecoverWithRecoveryKey(bundle, "AAAAA-AAAAA-AAAAA-AAAAA-AAAAA", "BrandNew789!")
	if !errors.Is(err, ErrInvalidRecoveryKey) {
		t.Errorf("Expected ErrInvalidRecoveryKey without wrapping, got %v", err)
	}

	if _, err = GenerateRecoveryKey(bundle, testPassword); err != nil {
		t.Fatalf("Failed to generate recovery key: %v", err)
	}

	testCases := []struct {
		name string
		key  string
	}{
		{"too short", "AAAAA-AAAAA"},
		{"bad characters", "AAAA0-AAAA1-AAAAA-AAAAA-AAAAA"},
		{"well-formed but wrong", "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE"},
		{"empty", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RecoverWithRecoveryKey(bundle, tc.key, "BrandNew789!")
			if !errors.Is(err, ErrInvalidRecoveryKey) {
				t.Errorf("Expected ErrInvalidRecoveryKey, got %v", err)
			}
		})
	}
}

// Regenerating invalidates the previous recovery key.
func TestGenerateRecoveryKeyReplacesPrevious(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	oldSecret, err := GenerateRecoveryKey(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to generate recovery key: %v", err)
	}
	newSecret, err := GenerateRecoveryKey(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to regenerate recovery key: %v", err)
	}
	if oldSecret == newSecret {
		t.Fatal("Regeneration produced an identical recovery key")
	}

	if _, err = RecoverWithRecoveryKey(bundle, oldSecret, "BrandNew789!"); !errors.Is(err, ErrInvalidRecoveryKey) {
		t.Errorf("Expected old recovery key to be invalid, got %v", err)
	}
	if _, err = RecoverWithRecoveryKey(bundle, newSecret, "BrandNew789!"); err != nil {
		t.Errorf("New recovery key failed: %v", err)
	}
}
