package ports

import (
	"context"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

type AssignmentRepository interface {
	// Get returns the committed assignment for the pair, or nil, nil when
	// none exists.
	Get(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error)
	// Insert commits the assignment as one atomic write, filling in the
	// generated id. A conflicting concurrent insert is reported as
	// domain.ErrAssignmentExists, distinguishable from other failures.
	Insert(ctx context.Context, assignment *domain.Assignment) error
}
