package domain

import "time"

// Event is a timestamped user action (e.g. "purchase"). Events are
// append-only and independent of assignments at creation time; they are
// joined to assignments by user id when computing results.
type Event struct {
	ID         int64
	UserID     string
	Type       string
	Timestamp  time.Time
	Properties map[string]any
}
