package turso_test

import (
	"context"
	"testing"
	"time"

	"github.com/emiliopalmerini/splitlab/internal/adapters/turso"
	"github.com/emiliopalmerini/splitlab/internal/domain"
)

func TestExperimentCreateAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewExperimentRepository(db)

	desc := "bigger buy button"
	created := &domain.Experiment{
		Name:        "buy-button",
		Description: &desc,
		IsActive:    true,
		CreatedAt:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Variants: []domain.Variant{
			{Name: "control", AllocationWeight: 70},
			{Name: "big", AllocationWeight: 30},
		},
	}
	if err := repo.Create(ctx, created); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("Create did not set the experiment id")
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil for an existing experiment")
	}
	if got.Name != "buy-button" || !got.IsActive {
		t.Errorf("experiment = %+v", got)
	}
	if got.Description == nil || *got.Description != desc {
		t.Errorf("description = %v, want %q", got.Description, desc)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
	if len(got.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(got.Variants))
	}
	if got.Variants[0].Name != "control" || got.Variants[0].AllocationWeight != 70 {
		t.Errorf("first variant = %+v", got.Variants[0])
	}
}

func TestExperimentGetUnknownID(t *testing.T) {
	db := testDB(t)
	repo := turso.NewExperimentRepository(db)

	got, err := repo.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetByID returned %+v for unknown id, want nil", got)
	}
}

func TestExperimentNilDescription(t *testing.T) {
	db := testDB(t)
	repo := turso.NewExperimentRepository(db)

	exp := createExperiment(t, db, "no-desc", domain.Variant{Name: "a", AllocationWeight: 1})

	got, err := repo.GetByID(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Description != nil {
		t.Errorf("description = %q, want nil", *got.Description)
	}
}

func TestExperimentGetRejectsCorruptTimestamp(t *testing.T) {
	db := testDB(t)
	repo := turso.NewExperimentRepository(db)

	res, err := db.Exec(`
		INSERT INTO experiments (name, is_active, created_at)
		VALUES ('broken', 1, 'not-a-timestamp')`)
	if err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("read seeded id: %v", err)
	}

	if _, err := repo.GetByID(context.Background(), id); err == nil {
		t.Fatal("GetByID succeeded on corrupt created_at, want error")
	}
}

func TestExperimentList(t *testing.T) {
	db := testDB(t)
	repo := turso.NewExperimentRepository(db)

	createExperiment(t, db, "first", domain.Variant{Name: "a", AllocationWeight: 1})
	createExperiment(t, db, "second", domain.Variant{Name: "a", AllocationWeight: 1})

	experiments, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(experiments) != 2 {
		t.Fatalf("listed %d experiments, want 2", len(experiments))
	}
	if experiments[0].Name != "first" || experiments[1].Name != "second" {
		t.Errorf("order = [%s, %s], want [first, second]", experiments[0].Name, experiments[1].Name)
	}
}
