package domain

import "time"

// Assignment binds a user to one variant of one experiment. At most one
// assignment exists per (experiment, user) pair; the store enforces this
// with a unique constraint and it is never updated or deleted.
type Assignment struct {
	ID           int64
	ExperimentID int64
	UserID       string
	VariantName  string
	AssignedAt   time.Time
}
