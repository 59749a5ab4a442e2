package models

import "time"

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is one line of the bounded operational log. Diagnostic state
// only, never a source of truth.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     LogLevel          `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Logger is implemented by the run controller; collaborators (reconciler,
// asset pipeline) log through it into the shared ring buffer.
type Logger interface {
	Log(level LogLevel, message string, context map[string]string)
}
