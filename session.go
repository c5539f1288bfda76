package keyvault

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
)

// DefaultSessionTimeout is the idle lifetime of an unlocked session when no
// explicit timeout is configured.
const DefaultSessionTimeout = 15 * time.Minute

// session is one unlocked bundle: the decrypted DEK in a locked buffer and
// its expiry. The master key that unwrapped the DEK never reaches this
// struct; it is derived, used once, and wiped inside Unlock.
type session struct {
	dataKey   *memguard.LockedBuffer
	expiresAt time.Time
}

// SessionStore is the in-memory registry of unlocked sessions.
//
// It replaces the module-level session state of earlier designs with an
// explicit object owned by the application's composition root and passed to
// anything needing key access - one registry per process, no hidden
// globals. All methods are safe for concurrent use; concurrent unlocks of
// the same bundle produce independent sessions.
//
// Expiry is lazy: a session past its deadline is detected and destroyed on
// the next access, not by a background timer. Every teardown path - expiry,
// Clear, ClearAll - wipes the key material (memguard locked buffers are
// zeroed on destroy) before the session is dropped.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	timeout  time.Duration
}

// NewSessionStore creates an empty session registry. A non-positive timeout
// falls back to DefaultSessionTimeout.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionStore{
		sessions: make(map[string]*session),
		timeout:  timeout,
	}
}

// Unlock derives the master key from the password and the bundle's salt,
// decrypts the wrapped DEK, and registers the result under a fresh session
// id with the configured expiry.
//
// A wrong password surfaces as ErrUnlockFailed and creates no session; the
// error is user-facing and retryable. On success the returned id is a
// capability token for the lifetime of the session and must be treated as
// sensitive.
//
// Session ids are UUIDv4, collision-free even for back-to-back unlocks of
// the same bundle.
func (s *SessionStore) Unlock(bundle *KeyBundle, password string) (string, error) {
	if bundle == nil {
		return "", ErrUnlockFailed
	}

	dek, err := unwrapDEK(bundle, password)
	if err != nil {
		return "", err
	}

	// NewBufferFromBytes wipes the source slice after copying it in.
	buf := memguard.NewBufferFromBytes(dek)

	sessionID := uuid.NewString()

	s.mu.Lock()
	s.sessions[sessionID] = &session{
		dataKey:   buf,
		expiresAt: time.Now().Add(s.timeout),
	}
	s.mu.Unlock()

	return sessionID, nil
}

// IsActive reports whether a session with the given id exists and has not
// expired. An expired session encountered here is destroyed.
func (s *SessionStore) IsActive(sessionID string) bool {
	sess := s.lookup(sessionID)
	return sess != nil
}

// DataKey returns a copy of the session's 32-byte data encryption key.
//
// This is purely a registry lookup - nothing is recomputed or re-derived.
// A missing or expired session surfaces as ErrNoActiveSession, which the
// caller should treat as "re-authenticate"; a nil key is never silently
// substituted.
//
// The returned slice is the caller's copy; wipe it when done.
func (s *SessionStore) DataKey(sessionID string) ([]byte, error) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return nil, ErrNoActiveSession
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess.dataKey == nil || !sess.dataKey.IsAlive() {
		return nil, ErrNoActiveSession
	}

	key := make([]byte, KeySize)
	copy(key, sess.dataKey.Bytes())
	return key, nil
}

// Extend resets the session's expiry timer to a full timeout from now.
// Silently does nothing if the session is missing or already expired.
func (s *SessionStore) Extend(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if time.Now().After(sess.expiresAt) {
		s.destroyLocked(sessionID, sess)
		return
	}
	sess.expiresAt = time.Now().Add(s.timeout)
}

// Clear removes one session, wiping its key material. Other sessions are
// unaffected. A no-op for unknown ids.
func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		s.destroyLocked(sessionID, sess)
	}
}

// ClearAll removes every session, wiping all key material. Used on logout
// and on encrypted-storage teardown.
func (s *SessionStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		s.destroyLocked(id, sess)
	}
}

// Count returns the number of live (unexpired) sessions.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			s.destroyLocked(id, sess)
			continue
		}
		count++
	}
	return count
}

// lookup returns the live session for the id, destroying it if expired.
func (s *SessionStore) lookup(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if time.Now().After(sess.expiresAt) {
		s.destroyLocked(sessionID, sess)
		return nil
	}
	return sess
}

// destroyLocked wipes and removes a session. Caller holds s.mu.
func (s *SessionStore) destroyLocked(sessionID string, sess *session) {
	if sess.dataKey != nil {
		sess.dataKey.Destroy()
		sess.dataKey = nil
	}
	delete(s.sessions, sessionID)
}
