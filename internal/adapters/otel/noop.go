package otel

import "context"

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) AssignmentResolved(ctx context.Context, experimentID int64, variant string, fresh bool) {
}

func (e *NoOpExporter) RaceRecovered(ctx context.Context, experimentID int64) {}

func (e *NoOpExporter) CacheLookup(ctx context.Context, kind string, hit bool) {}

func (e *NoOpExporter) EventEnqueued(ctx context.Context, eventType string) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
