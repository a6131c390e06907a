package ports

import (
	"context"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

type EventRepository interface {
	Insert(ctx context.Context, event *domain.Event) error
}
