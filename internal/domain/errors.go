package domain

import "errors"

var (
	// ErrExperimentNotFound is returned when an experiment id is unknown
	// or the experiment has no variants. Not retryable.
	ErrExperimentNotFound = errors.New("experiment not found or has no variants")

	// ErrAssignmentWriteFailed is returned when an assignment could not be
	// persisted: either a non-conflict store failure or an exhausted retry
	// budget after repeated uniqueness conflicts.
	ErrAssignmentWriteFailed = errors.New("unable to create assignment")

	// ErrInvalidDistribution is returned when a variant weight list is
	// empty, contains a negative weight, or has no strictly positive weight.
	ErrInvalidDistribution = errors.New("invalid weight distribution")

	// ErrAssignmentExists reports a uniqueness-constraint conflict on
	// insert: a concurrent caller committed the same (experiment, user)
	// pair first. Recoverable; the engine retries its lookup.
	ErrAssignmentExists = errors.New("assignment already exists")
)
