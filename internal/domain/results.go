package domain

import "time"

// VariantResult holds conversion statistics for a single variant.
type VariantResult struct {
	TotalAssignments int64
	ConversionCount  int64
	// ConversionRate is 100 * ConversionCount / TotalAssignments,
	// rounded to two decimals. Zero when there are no assignments.
	ConversionRate float64
}

// ResultsSummary is the per-variant performance report of an experiment.
type ResultsSummary struct {
	ExperimentID      int64
	ExperimentName    string
	ReportGeneratedAt time.Time
	Variants          map[string]VariantResult
}
