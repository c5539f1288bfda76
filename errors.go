package keyvault

import "errors"

// Sentinel errors returned by the key management core. Callers are expected
// to match them with errors.Is; everything else returned by this package
// wraps one of these or describes an environmental failure (storage, I/O).
var (
	// ErrInvalidKeySize indicates key material of the wrong length was
	// passed to an encryption or decryption call. This is a programmer
	// error and is never retried.
	ErrInvalidKeySize = errors.New("invalid key size: expected 32 bytes")

	// ErrDecryptionFailed indicates the authentication tag did not verify.
	// The cause (wrong key, tampered ciphertext, corrupted nonce) is
	// deliberately not distinguished to avoid acting as a decryption
	// oracle.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUnlockFailed indicates the supplied password could not unwrap the
	// bundle's data encryption key. User-facing and retryable.
	ErrUnlockFailed = errors.New("failed to unlock keys")

	// ErrNoActiveSession indicates a key-dependent operation was invoked
	// with a missing or expired session handle. The caller must
	// re-authenticate.
	ErrNoActiveSession = errors.New("no active session")

	// ErrNoActiveEncryptionSession is the storage-wrapper variant of
	// ErrNoActiveSession, raised on writes without a valid unlock.
	ErrNoActiveEncryptionSession = errors.New("no active encryption session")

	// ErrInvalidRecoveryKey indicates a malformed or non-matching recovery
	// key string. User-facing and retryable.
	ErrInvalidRecoveryKey = errors.New("invalid recovery key")
)
