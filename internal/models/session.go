package models

import (
	"errors"
	"time"
)

// SessionState is the state recorded for a playback session.
type SessionState string

// Session states.
const (
	SessionStateRunning   SessionState = "running"
	SessionStateCompleted SessionState = "completed"
	SessionStateStalled   SessionState = "stalled"
	SessionStateFailed    SessionState = "failed"
)

// ErrSessionURLRequired is returned when a session has no feed URL.
var ErrSessionURLRequired = errors.New("session feed url is required")

// Session is one run of the player against a feed.
type Session struct {
	BaseModel

	// URL has credentials redacted before storage.
	URL          string       `gorm:"not null;size:2048" json:"url"`
	State        SessionState `gorm:"not null;size:16;index" json:"state"`
	StartedAt    time.Time    `gorm:"not null;index" json:"started_at"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	Connects     uint64       `json:"connects"`
	Appends      uint64       `json:"appends"`
	Drops        uint64       `json:"drops"`
	DroppedBytes uint64       `json:"dropped_bytes"`
	Suppressed   uint64       `json:"suppressed"`
	Trims        uint64       `json:"trims"`
	BufferedSecs float64      `json:"buffered_seconds"`
	Error        string       `gorm:"size:1024" json:"error,omitempty"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// Validate checks required fields.
func (s *Session) Validate() error {
	if s.URL == "" {
		return ErrSessionURLRequired
	}
	return nil
}

// Finished reports whether the session has ended.
func (s *Session) Finished() bool {
	return s.EndedAt != nil
}

// Duration returns how long the session ran, up to now for running sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
