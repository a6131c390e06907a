package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/cache"
	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/ports"
)

// maxAttempts bounds the get-or-create retry loop. A uniqueness conflict
// means a competitor already committed, so the very next lookup is expected
// to find its row; more than a couple of retries indicates store trouble.
const maxAttempts = 3

// Service is the idempotent assignment engine. Mutual exclusion is
// delegated to the store's unique constraint on (experiment, user): the
// engine inserts optimistically and treats a conflict as an expected,
// retried event rather than an error. The cache is only ever an
// optimization; every path works identically with the cache unavailable.
type Service struct {
	experiments ports.ExperimentRepository
	assignments ports.AssignmentRepository
	cache       *cache.Client
	selector    *Selector
	metrics     ports.AssignmentMetrics
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(
	experiments ports.ExperimentRepository,
	assignments ports.AssignmentRepository,
	cacheClient *cache.Client,
	selector *Selector,
	metrics ports.AssignmentMetrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		experiments: experiments,
		assignments: assignments,
		cache:       cacheClient,
		selector:    selector,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

// CreateExperiment validates the weight distribution and persists the
// experiment with its variants in one transaction.
func (s *Service) CreateExperiment(ctx context.Context, name string, description *string, variants []domain.Variant) (*domain.Experiment, error) {
	if err := ValidateDistribution(variants); err != nil {
		return nil, err
	}

	experiment := &domain.Experiment{
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		Variants:    variants,
	}
	if err := s.experiments.Create(ctx, experiment); err != nil {
		return nil, fmt.Errorf("create experiment %q: %w", name, err)
	}

	s.log.Info().Int64("experiment_id", experiment.ID).Str("name", name).
		Int("variants", len(variants)).Msg("experiment created")
	return experiment, nil
}

// Resolve returns the single assignment for (experimentID, userID),
// creating it on first touch. Concurrent first-time calls for the same
// pair all return the same variant and timestamp; exactly one row is
// persisted.
func (s *Service) Resolve(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		existing, err := s.lookupAssignment(ctx, experimentID, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup for user %q: %v", domain.ErrAssignmentWriteFailed, userID, err)
		}
		if existing != nil {
			s.metrics.AssignmentResolved(ctx, experimentID, existing.VariantName, false)
			return existing, nil
		}

		experiment, err := s.lookupExperiment(ctx, experimentID)
		if err != nil {
			return nil, fmt.Errorf("%w: load experiment %d: %v", domain.ErrAssignmentWriteFailed, experimentID, err)
		}
		if experiment == nil || len(experiment.Variants) == 0 {
			return nil, fmt.Errorf("experiment %d: %w", experimentID, domain.ErrExperimentNotFound)
		}

		variant, err := s.selector.Pick(experiment.Variants)
		if err != nil {
			return nil, err
		}

		assignment := &domain.Assignment{
			ExperimentID: experimentID,
			UserID:       userID,
			VariantName:  variant,
			AssignedAt:   s.now().UTC().Truncate(time.Second),
		}
		err = s.assignments.Insert(ctx, assignment)
		if err == nil {
			s.cache.SetAssignment(ctx, assignment)
			s.metrics.AssignmentResolved(ctx, experimentID, variant, true)
			s.log.Info().Int64("experiment_id", experimentID).Str("user_id", userID).
				Str("variant", variant).Int("attempt", attempt).Msg("user newly assigned")
			return assignment, nil
		}
		if errors.Is(err, domain.ErrAssignmentExists) {
			// A concurrent caller committed first. The next lookup will
			// find its row.
			s.metrics.RaceRecovered(ctx, experimentID)
			s.log.Warn().Int64("experiment_id", experimentID).Str("user_id", userID).
				Int("attempt", attempt).Msg("concurrent assignment insert detected, retrying")
			continue
		}
		return nil, fmt.Errorf("%w: insert for user %q: %v", domain.ErrAssignmentWriteFailed, userID, err)
	}

	s.log.Warn().Int64("experiment_id", experimentID).Str("user_id", userID).
		Int("attempts", maxAttempts).Msg("assignment retry budget exhausted")
	return nil, fmt.Errorf("experiment %d user %q after %d attempts: %w",
		experimentID, userID, maxAttempts, domain.ErrAssignmentWriteFailed)
}

// lookupAssignment checks the cache first and falls back to the store,
// populating the cache lazily on a store hit.
func (s *Service) lookupAssignment(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error) {
	if cached := s.cache.GetAssignment(ctx, experimentID, userID); cached != nil {
		s.metrics.CacheLookup(ctx, "assignment", true)
		s.log.Debug().Int64("experiment_id", experimentID).Str("user_id", userID).Msg("assignment cache hit")
		return cached, nil
	}
	s.metrics.CacheLookup(ctx, "assignment", false)

	assignment, err := s.assignments.Get(ctx, experimentID, userID)
	if err != nil {
		return nil, err
	}
	if assignment != nil {
		s.cache.SetAssignment(ctx, assignment)
	}
	return assignment, nil
}

func (s *Service) lookupExperiment(ctx context.Context, experimentID int64) (*domain.Experiment, error) {
	if cached := s.cache.GetExperiment(ctx, experimentID); cached != nil {
		s.metrics.CacheLookup(ctx, "experiment", true)
		s.log.Debug().Int64("experiment_id", experimentID).Msg("experiment cache hit")
		return cached, nil
	}
	s.metrics.CacheLookup(ctx, "experiment", false)

	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if experiment != nil {
		s.cache.SetExperiment(ctx, experiment)
	}
	return experiment, nil
}
