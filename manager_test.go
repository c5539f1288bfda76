package keyvault

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestManagerLifecycle(t *testing.T) {
	manager, err := NewManager(Options{SessionTimeout: time.Minute})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	bundle, err := manager.InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	sessionID, err := manager.UnlockUserKeys(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock user keys: %v", err)
	}
	if !manager.Sessions().IsActive(sessionID) {
		t.Error("Session not active after unlock")
	}

	store := NewEphemeralStore(manager.Sessions(), nil)
	store.Bind(sessionID)
	if err = store.SetItem("key", "value"); err != nil {
		t.Fatalf("Failed to store through manager session: %v", err)
	}

	if err = manager.Close(); err != nil {
		t.Fatalf("Failed to close manager: %v", err)
	}
	if manager.Sessions().Count() != 0 {
		t.Error("Close left live sessions behind")
	}

	// Close is idempotent.
	if err = manager.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestManagerRotateAndRecover(t *testing.T) {
	manager, err := NewManager(Options{})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	bundle, err := manager.InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	originalDEK := mustUnwrap(t, bundle, testPassword)

	secret, err := manager.GenerateRecoveryKey(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to generate recovery key: %v", err)
	}

	rotated, err := manager.RotateUserKeys(testPassword, "NewSecret456!", bundle)
	if err != nil {
		t.Fatalf("Failed to rotate user keys: %v", err)
	}

	recovered, err := manager.RecoverWithRecoveryKey(rotated, secret, "BrandNew789!")
	if err != nil {
		t.Fatalf("Failed to recover: %v", err)
	}
	if !bytes.Equal(mustUnwrap(t, recovered, "BrandNew789!"), originalDEK) {
		t.Error("DEK changed across rotate and recover")
	}
}

func TestManagerInvalidOptions(t *testing.T) {
	testCases := []struct {
		name    string
		options Options
	}{
		{"negative timeout", Options{SessionTimeout: -time.Minute}},
		{"sub-second timeout", Options{SessionTimeout: 100 * time.Millisecond}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.options); err == nil {
				t.Error("Expected error for invalid options, got none")
			}
		})
	}
}

func TestManagerUnlockWrongPassword(t *testing.T) {
	manager, err := NewManager(Options{})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	bundle, err := manager.InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}

	if _, err = manager.UnlockUserKeys(bundle, "wrong-password"); !errors.Is(err, ErrUnlockFailed) {
		t.Errorf("Expected ErrUnlockFailed, got %v", err)
	}
}

func TestDefaultOptions(t *testing.T) {
	options := DefaultOptions()
	if options.SessionTimeout != DefaultSessionTimeout {
		t.Errorf("Expected default timeout %s, got %s", DefaultSessionTimeout, options.SessionTimeout)
	}
	if options.EnableMemoryLock {
		t.Error("Memory lock should be off by default")
	}
	if err := options.Validate(); err != nil {
		t.Errorf("Default options failed validation: %v", err)
	}
}
