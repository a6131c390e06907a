// Package results computes per-variant conversion statistics. Aggregation
// reads the store only: it needs a consistent view across all users, which
// the per-key cache cannot offer.
package results

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/ports"
)

type Service struct {
	experiments ports.ExperimentRepository
	results     ports.ResultsRepository
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(experiments ports.ExperimentRepository, results ports.ResultsRepository, log zerolog.Logger) *Service {
	return &Service{
		experiments: experiments,
		results:     results,
		log:         log,
		now:         time.Now,
	}
}

// Summarize reports per-variant assignment totals and conversions for the
// given event type. A conversion only counts when the event is strictly
// after the user's assignment; since additionally excludes older events
// but never filters assignments.
func (s *Service) Summarize(ctx context.Context, experimentID int64, eventType string, since *time.Time) (*domain.ResultsSummary, error) {
	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load experiment %d: %w", experimentID, err)
	}
	if experiment == nil {
		return nil, fmt.Errorf("experiment %d: %w", experimentID, domain.ErrExperimentNotFound)
	}

	totals, err := s.results.AssignmentCounts(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("count assignments for experiment %d: %w", experimentID, err)
	}
	conversions, err := s.results.ConversionCounts(ctx, experimentID, eventType, since)
	if err != nil {
		return nil, fmt.Errorf("count conversions for experiment %d: %w", experimentID, err)
	}

	// Every variant of the experiment appears in the report, including
	// ones no user was ever assigned to.
	variants := make(map[string]domain.VariantResult, len(experiment.Variants))
	for _, v := range experiment.Variants {
		variants[v.Name] = domain.VariantResult{}
	}
	for name, total := range totals {
		result := variants[name]
		result.TotalAssignments = total
		variants[name] = result
	}
	for name, count := range conversions {
		result := variants[name]
		result.ConversionCount = count
		if result.TotalAssignments > 0 {
			rate := float64(count) / float64(result.TotalAssignments) * 100
			result.ConversionRate = math.Round(rate*100) / 100
		}
		variants[name] = result
	}

	s.log.Debug().Int64("experiment_id", experimentID).Str("event_type", eventType).
		Int("variants", len(variants)).Msg("results summary computed")

	return &domain.ResultsSummary{
		ExperimentID:      experimentID,
		ExperimentName:    experiment.Name,
		ReportGeneratedAt: s.now().UTC(),
		Variants:          variants,
	}, nil
}
