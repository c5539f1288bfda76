package persist

// Store is the key-value persistence boundary underneath the encrypted
// storage facade. Every value passed through this interface is already
// encrypted by the layer above; implementations never see plaintext and
// must treat values as opaque bytes.
//
// Keys are flat strings scoped to one user namespace; implementations map
// them onto their backend's addressing (file paths, object keys, map
// entries) and are responsible for rejecting keys that would escape the
// namespace.
type Store interface {
	// Put writes data under key, overwriting any existing value.
	Put(key string, data []byte) error

	// Get returns the value under key. The second return is false when
	// the key is absent; that is not an error.
	Get(key string) ([]byte, bool, error)

	// Delete removes the value under key. Deleting an absent key is not
	// an error.
	Delete(key string) error

	// Exists reports whether a value is present under key.
	Exists(key string) (bool, error)

	// List returns all keys currently stored, in unspecified order.
	List() ([]string, error)

	// Clear removes every value in the namespace.
	Clear() error

	// Ping tests connectivity for remote backends. Local backends return
	// nil.
	Ping() error

	// Close releases any resources the store holds.
	Close() error

	// GetType identifies the backend ("memory", "filesystem", "s3").
	GetType() string
}
