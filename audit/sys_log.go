//go:build !windows

package audit

import (
	"encoding/json"
	"fmt"
	"log/syslog"
	"time"

	"github.com/google/uuid"
)

// SyslogOptions configures the syslog audit backend.
type SyslogOptions struct {
	Network string `json:"network"` // "tcp", "udp", or "" for local
	Address string `json:"address"` // e.g. "localhost:514"
	Tag     string `json:"tag"`
}

// SyslogLogger forwards audit events to syslog as JSON payloads.
type SyslogLogger struct {
	config     *Config
	syslogOpts SyslogOptions
	writer     *syslog.Writer
}

// Ensure SyslogLogger implements Logger.
var _ Logger = (*SyslogLogger)(nil)

// NewSyslogLogger creates a syslog audit logger.
func NewSyslogLogger(config *Config) (*SyslogLogger, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var opts SyslogOptions
	if err := parseOptions(config.Options, &opts); err != nil {
		return nil, fmt.Errorf("invalid syslog logger options: %w", err)
	}
	if opts.Tag == "" {
		opts.Tag = "keyvault"
	}

	writer, err := syslog.Dial(opts.Network, opts.Address, syslog.LOG_INFO|syslog.LOG_AUTH, opts.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}

	return &SyslogLogger{
		config:     config,
		syslogOpts: opts,
		writer:     writer,
	}, nil
}

func (s *SyslogLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    s.config.UserID,
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if success {
		return s.writer.Info(string(line))
	}
	return s.writer.Warning(string(line))
}

func (s *SyslogLogger) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
