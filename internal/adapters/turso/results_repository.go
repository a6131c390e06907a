package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type ResultsRepository struct {
	db *sql.DB
}

func NewResultsRepository(db *sql.DB) *ResultsRepository {
	return &ResultsRepository{db: db}
}

func (r *ResultsRepository) AssignmentCounts(ctx context.Context, experimentID int64) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_name, COUNT(*)
		FROM assignments
		WHERE experiment_id = ?
		GROUP BY variant_name`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	defer rows.Close()
	return scanCounts(rows)
}

// ConversionCounts joins events to assignments by user id. Timestamps are
// stored as fixed-width UTC RFC3339 text, so the string comparison in SQL
// matches chronological order. The strict > against assigned_at is the
// ordering rule: pre-assignment activity never counts as a conversion.
func (r *ResultsRepository) ConversionCounts(ctx context.Context, experimentID int64, eventType string, since *time.Time) (map[string]int64, error) {
	query := `
		SELECT a.variant_name, COUNT(e.id)
		FROM assignments a
		JOIN events e ON e.user_id = a.user_id
		WHERE a.experiment_id = ?
		  AND e.type = ?
		  AND e.timestamp > a.assigned_at`
	args := []any{experimentID, eventType}
	if since != nil {
		query += ` AND e.timestamp >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += ` GROUP BY a.variant_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count conversions: %w", err)
	}
	defer rows.Close()
	return scanCounts(rows)
}

func scanCounts(rows *sql.Rows) (map[string]int64, error) {
	counts := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			count int64
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}
	return counts, nil
}
