// Package mem provides best-effort process memory protection so that key
// material held in RAM is not swapped to disk. Protection is advisory:
// callers get told what level was achieved and carry on either way.
package mem

// ProtectionLevel indicates how well the process can protect key material
// in memory.
type ProtectionLevel int

const (
	// ProtectionNone means no memory protection could be applied.
	ProtectionNone ProtectionLevel = iota
	// ProtectionPartial means some measures applied (for example, wiping
	// on release) but pages may still be swapped.
	ProtectionPartial
	// ProtectionFull means process memory is locked and cannot swap.
	ProtectionFull
)

func (l ProtectionLevel) String() string {
	switch l {
	case ProtectionFull:
		return "full"
	case ProtectionPartial:
		return "partial"
	default:
		return "none"
	}
}

// Lock attempts to prevent the process's memory from being swapped to
// disk. It returns the protection level achieved; an error means even the
// attempt failed, not merely that protection is partial.
func Lock() (ProtectionLevel, error) {
	return lockMemoryPlatform()
}

// Unlock releases memory locks if any were applied.
func Unlock() error {
	return unlockMemoryPlatform()
}
