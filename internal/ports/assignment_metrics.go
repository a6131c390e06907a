package ports

import "context"

// AssignmentMetrics exports engine counters to an observability backend.
type AssignmentMetrics interface {
	// AssignmentResolved records a terminal successful resolution. fresh is
	// true when this call created the assignment rather than finding one.
	AssignmentResolved(ctx context.Context, experimentID int64, variant string, fresh bool)
	// RaceRecovered records a uniqueness conflict absorbed by the retry loop.
	RaceRecovered(ctx context.Context, experimentID int64)
	// CacheLookup records a cache probe for the given entity kind.
	CacheLookup(ctx context.Context, kind string, hit bool)
	// EventEnqueued records an event accepted by the relay.
	EventEnqueued(ctx context.Context, eventType string)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}
