package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Get(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error) {
	var (
		assignment domain.Assignment
		assignedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, experiment_id, user_id, variant_name, assigned_at
		FROM assignments WHERE experiment_id = ? AND user_id = ?`,
		experimentID, userID,
	).Scan(&assignment.ID, &assignment.ExperimentID, &assignment.UserID, &assignment.VariantName, &assignedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	assignment.AssignedAt, err = time.Parse(time.RFC3339, assignedAt)
	if err != nil {
		return nil, fmt.Errorf("parse assigned_at %q: %w", assignedAt, err)
	}
	return &assignment, nil
}

// Insert commits the assignment in a single atomic write. The UNIQUE
// constraint on (experiment_id, user_id) is the mutual exclusion
// primitive: a conflicting concurrent insert surfaces as
// domain.ErrAssignmentExists so the engine can recover.
func (r *AssignmentRepository) Insert(ctx context.Context, assignment *domain.Assignment) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO assignments (experiment_id, user_id, variant_name, assigned_at)
		VALUES (?, ?, ?, ?)`,
		assignment.ExperimentID,
		assignment.UserID,
		assignment.VariantName,
		assignment.AssignedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAssignmentExists
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read assignment id: %w", err)
	}
	assignment.ID = id
	return nil
}
