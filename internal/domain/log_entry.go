package domain

import "time"

// Severity is a normalized log level
type Severity string

const (
	SeverityTrace   Severity = "TRACE"
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// LogEntry represents a single classified line delivered to the collaborator.
// Entries are immutable once built.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"` // Ingestion time, not the time written in the line
	Severity  Severity  `json:"level"`
	Message   string    `json:"message"` // Decoded line with surrounding whitespace trimmed
}
