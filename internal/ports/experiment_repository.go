package ports

import (
	"context"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

type ExperimentRepository interface {
	// Create persists the experiment and its variants atomically,
	// filling in the generated id.
	Create(ctx context.Context, experiment *domain.Experiment) error
	// GetByID loads an experiment with its variants. Returns nil, nil
	// when the id is unknown.
	GetByID(ctx context.Context, id int64) (*domain.Experiment, error)
	List(ctx context.Context) ([]*domain.Experiment, error)
}
