package keyvault

import (
	"fmt"
	"time"

	"brightboard.dev/keyvault/audit"
)

// Options configures a Manager.
//
// Only operational parameters live here. Nothing in Options is secret, and
// the struct is safe to serialize into configuration files; passwords flow
// through the Manager's method calls, never through configuration.
type Options struct {
	// SessionTimeout is the idle lifetime of an unlocked session. Zero
	// selects DefaultSessionTimeout.
	SessionTimeout time.Duration `json:"session_timeout"`

	// EnableMemoryLock requests best-effort locking of process memory so
	// key material cannot be swapped to disk. Failure to lock degrades to
	// partial or no protection; it is reported, not fatal.
	EnableMemoryLock bool `json:"enable_memory_lock"`

	// Audit configures operation logging. Nil disables auditing (a no-op
	// logger is used).
	Audit *audit.Config `json:"audit,omitempty"`
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if o.SessionTimeout < 0 {
		return fmt.Errorf("session timeout cannot be negative")
	}
	if o.SessionTimeout > 0 && o.SessionTimeout < time.Second {
		return fmt.Errorf("session timeout below one second is almost certainly a unit mistake: %s", o.SessionTimeout)
	}
	return nil
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		SessionTimeout:   DefaultSessionTimeout,
		EnableMemoryLock: false,
	}
}
