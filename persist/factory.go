package persist

import (
	"fmt"
	"strings"
)

// StoreType represents the supported storage backends.
type StoreType string

const (
	// StoreTypeMemory keeps values in process memory only. This is the
	// ephemeral variant of the encrypted store.
	StoreTypeMemory StoreType = "memory"

	// StoreTypeFileSystem persists values as files under a base path.
	StoreTypeFileSystem StoreType = "filesystem"

	// StoreTypeS3 persists values in an S3-compatible object store.
	StoreTypeS3 StoreType = "s3"
)

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Type selects the backend. One of the StoreType constants.
	Type StoreType `json:"type" yaml:"type"`

	// Config carries backend-specific settings. Filesystem requires
	// "base_path"; S3 requires endpoint/credentials/bucket (see S3Config).
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// NewStore is the factory for storage backends. The userID becomes the
// namespace under which all keys are stored.
func NewStore(config StoreConfig, userID string) (Store, error) {
	switch config.Type {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeFileSystem:
		basePath, ok := config.Config["base_path"].(string)
		if !ok {
			return nil, fmt.Errorf("filesystem storage requires 'base_path' in config")
		}
		return NewFileSystemStore(basePath, userID)

	case StoreTypeS3:
		return NewS3StoreFromConfig(config, userID)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// validateUserID guards the namespace component against path traversal and
// backend-hostile characters.
func validateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	if strings.Contains(userID, "..") ||
		strings.Contains(userID, "/") ||
		strings.Contains(userID, "\\") ||
		strings.Contains(userID, " ") {
		return fmt.Errorf("user ID contains invalid characters")
	}

	if len(userID) > 100 {
		return fmt.Errorf("user ID too long (max 100 characters)")
	}

	return nil
}

// validateKey applies the same discipline to item keys. Keys become file
// names and object suffixes, so the character set is restricted.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if len(key) > 255 {
		return fmt.Errorf("key too long (max 255 characters)")
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("key contains invalid path characters")
	}
	return nil
}
