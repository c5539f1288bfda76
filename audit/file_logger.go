package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileLogger appends audit events as JSON lines to a file, rotating the
// file when it grows past the configured size.
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	config   *Config
	fileOpts FileOptions
}

// FileOptions configures the file logger.
type FileOptions struct {
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size,omitempty"`    // Max size in MB before rotation
	MaxBackups int    `json:"max_backups,omitempty"` // Rotated files kept
}

// Ensure FileLogger implements Logger.
var _ Logger = (*FileLogger)(nil)

// NewFileLogger creates a file-based audit logger.
func NewFileLogger(config *Config) (*FileLogger, error) {
	var fileOpts FileOptions
	if err := parseOptions(config.Options, &fileOpts); err != nil {
		return nil, fmt.Errorf("invalid file logger options: %w", err)
	}

	if fileOpts.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for file logger")
	}
	if fileOpts.MaxSize == 0 {
		fileOpts.MaxSize = 100
	}
	if fileOpts.MaxBackups == 0 {
		fileOpts.MaxBackups = 5
	}

	if err := os.MkdirAll(filepath.Dir(fileOpts.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &FileLogger{
		file:     file,
		config:   config,
		fileOpts: fileOpts,
	}, nil
}

func (f *FileLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    f.config.UserID,
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("audit log is closed")
	}

	if err = f.rotateIfNeeded(int64(len(line) + 1)); err != nil {
		return err
	}

	if _, err = f.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

func (f *FileLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// rotateIfNeeded rotates the log when the next write would exceed MaxSize.
// Caller holds f.mu.
func (f *FileLogger) rotateIfNeeded(incoming int64) error {
	info, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat audit log: %w", err)
	}
	if info.Size()+incoming < int64(f.fileOpts.MaxSize)*1024*1024 {
		return nil
	}

	if err = f.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}

	// Shift backups: log.2 -> log.3, log.1 -> log.2, log -> log.1.
	for i := f.fileOpts.MaxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", f.fileOpts.FilePath, i)
		to := fmt.Sprintf("%s.%d", f.fileOpts.FilePath, i+1)
		os.Rename(from, to)
	}
	if err = os.Rename(f.fileOpts.FilePath, f.fileOpts.FilePath+".1"); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	f.file, err = os.OpenFile(f.fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to reopen audit log: %w", err)
	}
	return nil
}
