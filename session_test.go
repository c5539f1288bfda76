package keyvault

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestSessionUnlock(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(time.Minute)
	defer sessions.ClearAll()

	sessionID, err := sessions.Unlock(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	if sessionID == "" {
		t.Fatal("Unlock returned an empty session id")
	}
	if !sessions.IsActive(sessionID) {
		t.Error("Fresh session reported inactive")
	}

	dataKey, err := sessions.DataKey(sessionID)
	if err != nil {
		t.Fatalf("Failed to get session data key: %v", err)
	}
	if !bytes.Equal(dataKey, mustUnwrap(t, bundle, testPassword)) {
		t.Error("Session data key doesn't match the bundle's DEK")
	}
}

func TestSessionUnlockWrongPassword(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(time.Minute)
	defer sessions.ClearAll()

	_, err = sessions.Unlock(bundle, "wrong-password")
	if !errors.Is(err, ErrUnlockFailed) {
		t.Errorf("Expected ErrUnlockFailed, got %v", err)
	}
	if sessions.Count() != 0 {
		t.Errorf("Failed unlock created a session: count %d", sessions.Count())
	}
}

// Concurrent unlocks of the same bundle must yield independent sessions
// with distinct ids.
func TestSessionIndependence(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(time.Minute)
	defer sessions.ClearAll()

	first, err := sessions.Unlock(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	second, err := sessions.Unlock(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	if first == second {
		t.Fatal("Two unlocks returned the same session id")
	}

	// Clearing one session leaves the other usable.
	sessions.Clear(first)
	if sessions.IsActive(first) {
		t.Error("Cleared session still reported active")
	}
	if _, err = sessions.DataKey(first); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession for cleared session, got %v", err)
	}
	if _, err = sessions.DataKey(second); err != nil {
		t.Errorf("Sibling session broken by Clear: %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(25 * time.Millisecond)
	defer sessions.ClearAll()

	sessionID, err := sessions.Unlock(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if sessions.IsActive(sessionID) {
		t.Error("Expired session reported active")
	}
	if _, err = sessions.DataKey(sessionID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession after expiry, got %v", err)
	}
	if sessions.Count() != 0 {
		t.Errorf("Expected 0 live sessions, got %d", sessions.Count())
	}
}

func TestSessionExtend(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(60 * time.Millisecond)
	defer sessions.ClearAll()

	sessionID, err := sessions.Unlock(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}

	// Keep touching the session past its original deadline.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		sessions.Extend(sessionID)
	}

	if !sessions.IsActive(sessionID) {
		t.Error("Extended session expired anyway")
	}
}

func TestSessionClearAll(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(time.Minute)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := sessions.Unlock(bundle, testPassword)
		if err != nil {
			t.Fatalf("Failed to unlock: %v", err)
		}
		ids = append(ids, id)
	}
	if sessions.Count() != 3 {
		t.Fatalf("Expected 3 live sessions, got %d", sessions.Count())
	}

	sessions.ClearAll()

	if sessions.Count() != 0 {
		t.Errorf("Expected 0 sessions after ClearAll, got %d", sessions.Count())
	}
	for _, id := range ids {
		if _, err := sessions.DataKey(id); !errors.Is(err, ErrNoActiveSession) {
			t.Errorf("Expected ErrNoActiveSession for %s, got %v", id, err)
		}
	}
}

func TestSessionNilBundle(t *testing.T) {
	sessions := NewSessionStore(time.Minute)
	if _, err := sessions.Unlock(nil, testPassword); !errors.Is(err, ErrUnlockFailed) {
		t.Errorf("Expected ErrUnlockFailed for nil bundle, got %v", err)
	}
}

// DataKey hands out copies; mutating one must not corrupt the session.
func TestSessionDataKeyIsolation(t *testing.T) {
	bundle, err := InitializeUserKeys(testUserID, testPassword)
	if err != nil {
		t.Fatalf("Failed to initialize user keys: %v", err)
	}
	sessions := NewSessionStore(time.Minute)
	defer sessions.ClearAll()

	sessionID, err := sessions.Unlock(bundle, testPassword)
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}

	first, err := sessions.DataKey(sessionID)
	if err != nil {
		t.Fatalf("Failed to get data key: %v", err)
	}
	for i := range first {
		first[i] = 0
	}

	second, err := sessions.DataKey(sessionID)
	if err != nil {
		t.Fatalf("Failed to get data key again: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("Wiping the caller's copy corrupted the session key")
	}
}
