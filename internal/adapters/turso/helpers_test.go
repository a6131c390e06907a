package turso_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/splitlab/internal/adapters/turso"
	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/migrate"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	ctx := context.Background()
	if err := migrate.RunAll(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createExperiment(t *testing.T, db *sql.DB, name string, variants ...domain.Variant) *domain.Experiment {
	t.Helper()

	experiment := &domain.Experiment{
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Variants:  variants,
	}
	if err := turso.NewExperimentRepository(db).Create(context.Background(), experiment); err != nil {
		t.Fatalf("Failed to create experiment: %v", err)
	}
	return experiment
}

func insertAssignment(t *testing.T, db *sql.DB, experimentID int64, userID, variant string, at time.Time) *domain.Assignment {
	t.Helper()

	assignment := &domain.Assignment{
		ExperimentID: experimentID,
		UserID:       userID,
		VariantName:  variant,
		AssignedAt:   at,
	}
	if err := turso.NewAssignmentRepository(db).Insert(context.Background(), assignment); err != nil {
		t.Fatalf("Failed to insert assignment: %v", err)
	}
	return assignment
}

func insertEvent(t *testing.T, db *sql.DB, userID, eventType string, at time.Time) {
	t.Helper()

	event := &domain.Event{UserID: userID, Type: eventType, Timestamp: at}
	if err := turso.NewEventRepository(db).Insert(context.Background(), event); err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}
}
