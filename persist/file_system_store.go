package persist

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FilePermissions restricts stored values to the owning user.
	FilePermissions os.FileMode = 0600
	// DirPermissions restricts the namespace directory to the owning user.
	DirPermissions os.FileMode = 0700

	itemSuffix = ".enc"
)

// FileSystemStore implements Store on the local filesystem. Each value
// lives in its own file under basePath/userID/, written atomically via a
// temp file and rename so a crash mid-write never leaves a torn value.
// Keys are base64url-encoded into file names, which keeps arbitrary keys
// safe on any filesystem.
//
// Layout:
//
//	basePath/
//	└── userID/
//	    ├── <base64url(key1)>.enc
//	    ├── <base64url(key2)>.enc
//	    └── temp/
type FileSystemStore struct {
	basePath string
	userID   string
	userPath string
	tempDir  string
}

// Ensure FileSystemStore implements Store.
var _ Store = (*FileSystemStore)(nil)

// NewFileSystemStore initializes the namespace directories and returns a
// ready store.
func NewFileSystemStore(basePath, userID string) (*FileSystemStore, error) {
	if userID == "" {
		userID = "default"
	}
	if err := validateUserID(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	userPath := filepath.Join(basePath, userID)
	fs := &FileSystemStore{
		basePath: basePath,
		userID:   userID,
		userPath: userPath,
		tempDir:  filepath.Join(userPath, "temp"),
	}

	for _, dir := range []string{fs.userPath, fs.tempDir} {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return fs, nil
}

func (fs *FileSystemStore) Put(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	// Write to a temp file in the same filesystem, then rename into
	// place; rename is atomic on POSIX filesystems.
	tmp, err := os.CreateTemp(fs.tempDir, "put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err = tmp.Chmod(FilePermissions); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write value: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Rename(tmpName, fs.itemPath(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(fs.itemPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read value: %w", err)
	}
	return data, true, nil
}

func (fs *FileSystemStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := os.Remove(fs.itemPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Exists(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(fs.itemPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat value: %w", err)
	}
	return true, nil
}

func (fs *FileSystemStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.userPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list values: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), itemSuffix) {
			continue
		}
		encoded := strings.TrimSuffix(entry.Name(), itemSuffix)
		key, err := base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			// Foreign file in the namespace; skip it.
			continue
		}
		keys = append(keys, string(key))
	}
	return keys, nil
}

func (fs *FileSystemStore) Clear() error {
	keys, err := fs.List()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := fs.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSystemStore) Ping() error {
	if _, err := os.Stat(fs.userPath); err != nil {
		return fmt.Errorf("store directory inaccessible: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Close() error {
	// Nothing held open between operations.
	return nil
}

func (fs *FileSystemStore) GetType() string {
	return string(StoreTypeFileSystem)
}

func (fs *FileSystemStore) itemPath(key string) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(key))
	return filepath.Join(fs.userPath, encoded+itemSuffix)
}
