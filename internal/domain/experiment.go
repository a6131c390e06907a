package domain

import "time"

// Experiment is a named A/B test owning a fixed set of variants.
// The variant set is immutable after creation; only the active flag
// may change later.
type Experiment struct {
	ID          int64
	Name        string
	Description *string
	IsActive    bool
	CreatedAt   time.Time
	Variants    []Variant
}

// Variant is a treatment arm of an experiment. Weights are relative
// to each other and do not have to sum to 100.
type Variant struct {
	Name             string
	AllocationWeight float64
}
