package ports

import (
	"context"
	"time"
)

type ResultsRepository interface {
	// AssignmentCounts returns committed assignments per variant name.
	AssignmentCounts(ctx context.Context, experimentID int64) (map[string]int64, error)
	// ConversionCounts returns, per variant name, the number of events of
	// the given type whose timestamp is strictly after the converting
	// user's assignment timestamp. When since is non-nil, events before it
	// are excluded as well; assignments are never filtered by since.
	ConversionCounts(ctx context.Context, experimentID int64, eventType string, since *time.Time) (map[string]int64, error)
}
