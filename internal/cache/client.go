package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/ports"
)

// Default lifetimes. Experiments are effectively immutable (the variant
// set is fixed at creation) so a long TTL is safe; assignments are
// immutable too but kept short to bound memory on the backend.
const (
	DefaultExperimentTTL = time.Hour
	DefaultAssignmentTTL = time.Minute
)

// Client is the read-through cache for experiments and assignments.
// It is strictly an optimization: every method degrades to a miss on any
// backend failure, and a nil backend behaves as always-miss.
type Client struct {
	backend       ports.CacheBackend
	experimentTTL time.Duration
	assignmentTTL time.Duration
	log           zerolog.Logger
}

func NewClient(backend ports.CacheBackend, experimentTTL, assignmentTTL time.Duration, log zerolog.Logger) *Client {
	if experimentTTL <= 0 {
		experimentTTL = DefaultExperimentTTL
	}
	if assignmentTTL <= 0 {
		assignmentTTL = DefaultAssignmentTTL
	}
	return &Client{
		backend:       backend,
		experimentTTL: experimentTTL,
		assignmentTTL: assignmentTTL,
		log:           log,
	}
}

func experimentKey(id int64) string {
	return fmt.Sprintf("exp:%d", id)
}

func assignmentKey(experimentID int64, userID string) string {
	return fmt.Sprintf("asn:%d:%s", experimentID, userID)
}

// GetExperiment returns the cached experiment snapshot, or nil on a miss.
func (c *Client) GetExperiment(ctx context.Context, id int64) *domain.Experiment {
	data := c.get(ctx, experimentKey(id))
	if data == nil {
		return nil
	}
	experiment, err := decodeExperiment(data)
	if err != nil {
		c.log.Debug().Err(err).Int64("experiment_id", id).Msg("discarding undecodable experiment snapshot")
		return nil
	}
	return experiment
}

// SetExperiment caches the experiment. The snapshot excludes assignments
// to bound payload size.
func (c *Client) SetExperiment(ctx context.Context, experiment *domain.Experiment) {
	data, err := encodeExperiment(experiment)
	if err != nil {
		c.log.Debug().Err(err).Int64("experiment_id", experiment.ID).Msg("failed to encode experiment snapshot")
		return
	}
	c.set(ctx, experimentKey(experiment.ID), data, c.experimentTTL)
}

// GetAssignment returns the cached assignment, or nil on a miss.
func (c *Client) GetAssignment(ctx context.Context, experimentID int64, userID string) *domain.Assignment {
	data := c.get(ctx, assignmentKey(experimentID, userID))
	if data == nil {
		return nil
	}
	assignment, err := decodeAssignment(data)
	if err != nil {
		c.log.Debug().Err(err).Int64("experiment_id", experimentID).Msg("discarding undecodable assignment snapshot")
		return nil
	}
	return assignment
}

func (c *Client) SetAssignment(ctx context.Context, assignment *domain.Assignment) {
	data, err := encodeAssignment(assignment)
	if err != nil {
		c.log.Debug().Err(err).Int64("assignment_id", assignment.ID).Msg("failed to encode assignment snapshot")
		return
	}
	c.set(ctx, assignmentKey(assignment.ExperimentID, assignment.UserID), data, c.assignmentTTL)
}

func (c *Client) get(ctx context.Context, key string) []byte {
	if c == nil || c.backend == nil {
		return nil
	}
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		return nil
	}
	return data
}

func (c *Client) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}
