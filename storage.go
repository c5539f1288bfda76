package keyvault

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"brightboard.dev/keyvault/audit"
	"brightboard.dev/keyvault/persist"
)

// EncryptedStore is a key-value storage facade that transparently encrypts
// values on write and decrypts them on read with the bound session's data
// key. The backing store only ever sees serialized EncryptedPayload JSON;
// no plaintext crosses into persistence.
//
// Two flavors exist with an identical contract: a persistent store (file
// system or S3 backend) and an ephemeral one (memory backend). Both require
// a live session bound via Bind before any value can be written or read.
//
// READ SOFT-FAIL POLICY:
// A value that is present but fails to decrypt (corruption, tampering, a
// value written under a different DEK) is reported as a miss, not an error.
// The strict decode lives in openItem; GetItem maps its failures to a
// logged miss so that read paths stay resilient to partial corruption.
// This mirrors the behavior UI callers were built against and is covered
// by tests as an explicit contract, not an accident. The downgrade is
// scoped to decode failures only: a missing or expired session is a hard
// ErrNoActiveEncryptionSession, and a backend read error propagates as-is,
// because silently reading nothing when the user merely needs to
// re-authenticate - or when the backend is broken - would be
// indistinguishable from data loss.
type EncryptedStore struct {
	backend  persist.Store
	sessions *SessionStore
	audit    audit.Logger

	mu        sync.RWMutex
	sessionID string
}

// NewEncryptedStore wraps a backing store with transparent encryption.
// A nil logger falls back to the no-op audit logger.
func NewEncryptedStore(backend persist.Store, sessions *SessionStore, logger audit.Logger) *EncryptedStore {
	if logger == nil {
		logger = audit.NewNoOpLogger()
	}
	return &EncryptedStore{
		backend:  backend,
		sessions: sessions,
		audit:    logger,
	}
}

// NewEphemeralStore returns an encrypted store over an in-memory backend.
// Contents do not survive the process.
func NewEphemeralStore(sessions *SessionStore, logger audit.Logger) *EncryptedStore {
	return NewEncryptedStore(persist.NewMemoryStore(), sessions, logger)
}

// Bind associates the store with an unlocked session. Subsequent reads and
// writes use that session's data key until rebound.
func (e *EncryptedStore) Bind(sessionID string) {
	e.mu.Lock()
	e.sessionID = sessionID
	e.mu.Unlock()
}

// SetItem encrypts value with the bound session's data key and writes the
// serialized payload under key. The value is canonically JSON-serialized
// first, so anything marshalable can be stored.
//
// Fails with ErrNoActiveEncryptionSession when no live session is bound.
func (e *EncryptedStore) SetItem(key string, value interface{}) error {
	dataKey, err := e.sessionKey()
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(dataKey)

	payload, err := EncryptJSON(value, dataKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt value for %q: %w", key, err)
	}

	serialized, err := payload.Serialize()
	if err != nil {
		return err
	}

	if err = e.backend.Put(key, serialized); err != nil {
		e.audit.Log("storage_set", false, map[string]interface{}{
			"key":   key,
			"error": "backend write failed",
		})
		return fmt.Errorf("failed to store %q: %w", key, err)
	}

	e.audit.Log("storage_set", true, map[string]interface{}{
		"key":  key,
		"size": len(serialized),
	})
	return nil
}

// GetItem reads, decrypts and JSON-parses the value under key into out.
// It returns (false, nil) when the key is absent, and - per the documented
// soft-fail policy - when the stored value cannot be decrypted or parsed;
// the failure is audit-logged. A missing or expired session is a hard
// ErrNoActiveEncryptionSession, and a backend read error propagates.
func (e *EncryptedStore) GetItem(key string, out interface{}) (bool, error) {
	dataKey, err := e.sessionKey()
	if err != nil {
		return false, err
	}
	defer memguard.WipeBytes(dataKey)

	serialized, found, err := e.backend.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if !found {
		return false, nil
	}

	if err = openItem(serialized, dataKey, out); err != nil {
		// Decryption or parse failure: downgrade to a logged miss.
		e.audit.Log("storage_get", false, map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false, nil
	}
	return true, nil
}

// openItem decodes one stored value: parse the payload, open it with the
// data key, unmarshal the plaintext into out.
func openItem(serialized, dataKey []byte, out interface{}) error {
	payload, err := ParseEncryptedPayload(serialized)
	if err != nil {
		return err
	}

	plaintext, err := Decrypt(payload, dataKey)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("failed to parse stored value: %w", err)
	}
	return nil
}

// RemoveItem deletes the value under key. No decryption is involved.
func (e *EncryptedStore) RemoveItem(key string) error {
	return e.backend.Delete(key)
}

// HasItem reports whether a value exists under key, without decrypting it.
func (e *EncryptedStore) HasItem(key string) (bool, error) {
	return e.backend.Exists(key)
}

// Clear removes every value from the backing store.
func (e *EncryptedStore) Clear() error {
	return e.backend.Clear()
}

// Close releases the backing store. Session teardown is the session
// store's job, not this facade's.
func (e *EncryptedStore) Close() error {
	return e.backend.Close()
}

// sessionKey fetches the bound session's data key, mapping every session
// failure to ErrNoActiveEncryptionSession.
func (e *EncryptedStore) sessionKey() ([]byte, error) {
	e.mu.RLock()
	sessionID := e.sessionID
	e.mu.RUnlock()

	if sessionID == "" || e.sessions == nil {
		return nil, ErrNoActiveEncryptionSession
	}
	dataKey, err := e.sessions.DataKey(sessionID)
	if err != nil {
		return nil, ErrNoActiveEncryptionSession
	}
	return dataKey, nil
}
