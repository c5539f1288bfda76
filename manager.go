package keyvault

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"brightboard.dev/keyvault/audit"
	"brightboard.dev/keyvault/internal/mem"
)

// Purge memguard state on interrupt so locked buffers never outlive the
// process in readable form.
func init() {
	memguard.CatchInterrupt()
}

// Manager is the composition root of the key management core. It owns the
// process-wide SessionStore, the audit logger and the memory protection
// state, and exposes the bundle lifecycle operations with audit logging
// wrapped around the package-level primitives.
//
// One Manager per process is the intended shape - the same "one session
// registry per process" semantics the original design kept in module
// globals, made explicit and injectable.
type Manager struct {
	sessions *SessionStore
	audit    audit.Logger
	options  Options

	protection mem.ProtectionLevel
	closeOnce  sync.Once
}

// NewManager creates a Manager with the given options. A zero Options value
// is valid and selects the defaults.
func NewManager(options Options) (*Manager, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	logger, err := audit.NewLogger(options.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	m := &Manager{
		sessions:   NewSessionStore(options.SessionTimeout),
		audit:      logger,
		options:    options,
		protection: mem.ProtectionNone,
	}

	if options.EnableMemoryLock {
		level, lockErr := mem.Lock()
		m.protection = level
		if lockErr != nil {
			// Degraded protection is not fatal; record it and continue.
			m.audit.Log("memory_lock", false, map[string]interface{}{
				"error": lockErr.Error(),
			})
		}
	}

	return m, nil
}

// Sessions exposes the session registry for collaborators that need key
// access, such as the encrypted storage wrapper.
func (m *Manager) Sessions() *SessionStore {
	return m.sessions
}

// MemoryProtection reports the protection level achieved at startup.
func (m *Manager) MemoryProtection() mem.ProtectionLevel {
	return m.protection
}

// InitializeUserKeys creates key material for a new user. See the
// package-level InitializeUserKeys for semantics.
func (m *Manager) InitializeUserKeys(userID, password string) (*KeyBundle, error) {
	bundle, err := InitializeUserKeys(userID, password)
	if err != nil {
		m.audit.Log("initialize_user_keys", false, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}
	m.audit.Log("initialize_user_keys", true, map[string]interface{}{
		"user_id": userID,
		"version": bundle.Version,
	})
	return bundle, nil
}

// UnlockUserKeys unlocks a bundle into the manager's session registry and
// returns the session handle.
func (m *Manager) UnlockUserKeys(bundle *KeyBundle, password string) (string, error) {
	sessionID, err := m.sessions.Unlock(bundle, password)
	if err != nil {
		m.audit.Log("unlock_user_keys", false, map[string]interface{}{
			"user_id": userIDOf(bundle),
		})
		return "", err
	}
	m.audit.Log("unlock_user_keys", true, map[string]interface{}{
		"user_id": bundle.UserID,
	})
	return sessionID, nil
}

// RotateUserKeys re-wraps a bundle's DEK under a new password. See the
// package-level RotateUserKeys for semantics.
func (m *Manager) RotateUserKeys(oldPassword, newPassword string, bundle *KeyBundle) (*KeyBundle, error) {
	rotated, err := RotateUserKeys(oldPassword, newPassword, bundle)
	if err != nil {
		m.audit.Log("rotate_user_keys", false, map[string]interface{}{
			"user_id": userIDOf(bundle),
		})
		return nil, err
	}
	m.audit.Log("rotate_user_keys", true, map[string]interface{}{
		"user_id": rotated.UserID,
		"version": rotated.Version,
	})
	return rotated, nil
}

// GenerateRecoveryKey attaches a recovery wrapping to the bundle and
// returns the one-time recovery string.
func (m *Manager) GenerateRecoveryKey(bundle *KeyBundle, password string) (string, error) {
	secret, err := GenerateRecoveryKey(bundle, password)
	if err != nil {
		m.audit.Log("generate_recovery_key", false, map[string]interface{}{
			"user_id": userIDOf(bundle),
		})
		return "", err
	}
	m.audit.Log("generate_recovery_key", true, map[string]interface{}{
		"user_id": bundle.UserID,
	})
	return secret, nil
}

// RecoverWithRecoveryKey rebuilds a bundle from its recovery wrapping and
// a new password.
func (m *Manager) RecoverWithRecoveryKey(bundle *KeyBundle, recoveryKey, newPassword string) (*KeyBundle, error) {
	recovered, err := RecoverWithRecoveryKey(bundle, recoveryKey, newPassword)
	if err != nil {
		m.audit.Log("recover_with_recovery_key", false, map[string]interface{}{
			"user_id": userIDOf(bundle),
		})
		return nil, err
	}
	m.audit.Log("recover_with_recovery_key", true, map[string]interface{}{
		"user_id": recovered.UserID,
		"version": recovered.Version,
	})
	return recovered, nil
}

// Close tears the manager down: every session is cleared (key material
// wiped), memory locks released, and the audit logger closed. Safe to call
// more than once.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.sessions.ClearAll()
		if m.options.EnableMemoryLock {
			if unlockErr := mem.Unlock(); unlockErr != nil {
				err = unlockErr
			}
		}
		m.audit.Log("manager_closed", true, nil)
		if closeErr := m.audit.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}

func userIDOf(bundle *KeyBundle) string {
	if bundle == nil {
		return ""
	}
	return bundle.UserID
}
