//go:build windows

package mem

// Windows offers VirtualLock, but it is per-region and pageable under
// memory pressure; buffer wiping is the effective protection there.
func lockMemoryPlatform() (ProtectionLevel, error) {
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
