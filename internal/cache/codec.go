package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

// Cache payloads may outlive a deployment, so snapshots carry an explicit
// schema version. A payload with an unknown version decodes as an error,
// which the client treats as a miss.
const snapshotVersion = 1

type variantSnapshot struct {
	Name             string  `json:"name"`
	AllocationWeight float64 `json:"allocation_weight"`
}

type experimentSnapshot struct {
	Version     int               `json:"v"`
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	Variants    []variantSnapshot `json:"variants"`
}

type assignmentSnapshot struct {
	Version      int       `json:"v"`
	ID           int64     `json:"id"`
	ExperimentID int64     `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	VariantName  string    `json:"variant_name"`
	AssignedAt   time.Time `json:"assigned_at"`
}

func encodeExperiment(experiment *domain.Experiment) ([]byte, error) {
	snapshot := experimentSnapshot{
		Version:     snapshotVersion,
		ID:          experiment.ID,
		Name:        experiment.Name,
		Description: experiment.Description,
		IsActive:    experiment.IsActive,
		CreatedAt:   experiment.CreatedAt,
		Variants:    make([]variantSnapshot, len(experiment.Variants)),
	}
	for i, v := range experiment.Variants {
		snapshot.Variants[i] = variantSnapshot{Name: v.Name, AllocationWeight: v.AllocationWeight}
	}
	return json.Marshal(snapshot)
}

func decodeExperiment(data []byte) (*domain.Experiment, error) {
	var snapshot experimentSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported experiment snapshot version %d", snapshot.Version)
	}
	experiment := &domain.Experiment{
		ID:          snapshot.ID,
		Name:        snapshot.Name,
		Description: snapshot.Description,
		IsActive:    snapshot.IsActive,
		CreatedAt:   snapshot.CreatedAt,
		Variants:    make([]domain.Variant, len(snapshot.Variants)),
	}
	for i, v := range snapshot.Variants {
		experiment.Variants[i] = domain.Variant{Name: v.Name, AllocationWeight: v.AllocationWeight}
	}
	return experiment, nil
}

func encodeAssignment(assignment *domain.Assignment) ([]byte, error) {
	return json.Marshal(assignmentSnapshot{
		Version:      snapshotVersion,
		ID:           assignment.ID,
		ExperimentID: assignment.ExperimentID,
		UserID:       assignment.UserID,
		VariantName:  assignment.VariantName,
		AssignedAt:   assignment.AssignedAt,
	})
}

func decodeAssignment(data []byte) (*domain.Assignment, error) {
	var snapshot assignmentSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported assignment snapshot version %d", snapshot.Version)
	}
	return &domain.Assignment{
		ID:           snapshot.ID,
		ExperimentID: snapshot.ExperimentID,
		UserID:       snapshot.UserID,
		VariantName:  snapshot.VariantName,
		AssignedAt:   snapshot.AssignedAt,
	}, nil
}
