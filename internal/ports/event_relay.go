package ports

import (
	"context"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

// EventRelay accepts a recorded event for asynchronous insertion into the
// store. Record returns as soon as the event is enqueued, with a task id
// for log correlation; callers never wait for the insert itself.
type EventRelay interface {
	Record(ctx context.Context, event *domain.Event) (string, error)
}
