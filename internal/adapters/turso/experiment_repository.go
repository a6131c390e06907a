package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/util"
)

type ExperimentRepository struct {
	db *sql.DB
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

func (r *ExperimentRepository) Create(ctx context.Context, experiment *domain.Experiment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO experiments (name, description, is_active, created_at)
		VALUES (?, ?, ?, ?)`,
		experiment.Name,
		util.NullStringPtr(experiment.Description),
		util.BoolToInt64(experiment.IsActive),
		experiment.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read experiment id: %w", err)
	}

	for _, v := range experiment.Variants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO variants (experiment_id, name, allocation_weight)
			VALUES (?, ?, ?)`,
			id, v.Name, v.AllocationWeight,
		); err != nil {
			return fmt.Errorf("insert variant %q: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit experiment: %w", err)
	}
	experiment.ID = id
	return nil
}

func (r *ExperimentRepository) GetByID(ctx context.Context, id int64) (*domain.Experiment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM experiments WHERE id = ?`, id)

	experiment, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, allocation_weight
		FROM variants WHERE experiment_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.Name, &v.AllocationWeight); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		experiment.Variants = append(experiment.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return experiment, nil
}

func (r *ExperimentRepository) List(ctx context.Context) ([]*domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM experiments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*domain.Experiment
	for rows.Next() {
		experiment, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		experiments = append(experiments, experiment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiments: %w", err)
	}
	return experiments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*domain.Experiment, error) {
	var (
		experiment  domain.Experiment
		description sql.NullString
		isActive    int64
		createdAt   string
	)
	if err := row.Scan(&experiment.ID, &experiment.Name, &description, &isActive, &createdAt); err != nil {
		return nil, err
	}
	experiment.Description = util.NullStringToPtr(description)
	experiment.IsActive = isActive == 1
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	experiment.CreatedAt = parsed
	return &experiment, nil
}
