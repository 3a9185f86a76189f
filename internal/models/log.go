package models

import (
	"time"
)

// LogState categorizes a log entry for display
type LogState string

const (
	LogStateError   LogState = "error"   // Dispatch failed
	LogStatePending LogState = "pending" // Accepted by the API but not yet materialized
	LogStateSuccess LogState = "success" // Materialized, has creation and due timestamps
)

// LogEntry records the outcome of one status dispatch attempt for an item.
// Entries are append-only and never mutated after creation.
type LogEntry struct {
	Date        time.Time      `json:"date"`
	Success     bool           `json:"success"`
	Status      *PendingStatus `json:"status,omitempty"` // Omitted on pre-send validation errors
	ProfileName string         `json:"profile_name,omitempty"`
	ProfileID   string         `json:"profile,omitempty"`
	CycleID     string         `json:"cycle_id,omitempty"`

	// Data from the API: Message holds the response text on success,
	// or the error message on failure
	Message         string     `json:"message"`
	StatusText      string     `json:"status_text,omitempty"`
	StatusCreatedAt *time.Time `json:"status_created_at,omitempty"`
	StatusDueAt     *time.Time `json:"status_due_at,omitempty"`
}

// State derives the display category for this entry
func (e LogEntry) State() LogState {
	switch {
	case e.Success && e.StatusCreatedAt != nil:
		return LogStateSuccess
	case e.Success:
		return LogStatePending
	default:
		return LogStateError
	}
}

// Text returns the status text for display, falling back to the text that
// was submitted when the API did not echo one back
func (e LogEntry) Text() string {
	if e.StatusText != "" {
		return e.StatusText
	}
	if e.Status != nil {
		return e.Status.Text
	}
	return e.Message
}
