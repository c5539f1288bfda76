package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config selects and configures an audit logging backend.
type Config struct {
	Enabled bool                   `json:"enabled" yaml:"enabled"`
	UserID  string                 `json:"user_id" yaml:"user_id"`
	Type    ConfigType             `json:"type" yaml:"type"`
	Options map[string]interface{} `json:"options" yaml:"options"`
}

// ConfigType identifies an audit backend.
type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Logger is the pluggable audit sink. Implementations must never be handed
// secret material; callers log operation names, success flags and
// non-sensitive metadata only (sizes, versions, key names - never values,
// passwords or key bytes).
type Logger interface {
	Log(action string, success bool, metadata map[string]interface{}) error
	Close() error
}

// Event is one audit record as serialized by the concrete loggers.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id,omitempty"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewLogger creates the logger selected by config. A nil or disabled
// config yields the no-op logger.
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return NewNoOpLogger(), nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return NewNoOpLogger(), nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// parseOptions converts the loose options map into a typed options struct.
func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return nil
}
