package assignment

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

// Selector picks one variant with probability proportional to its weight
// among the total. Zero-weight variants are unselectable but not an error.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector() *Selector {
	return NewSeededSelector(time.Now().UnixNano())
}

// NewSeededSelector creates a selector with deterministic draws, for tests
// that assert selection-count distributions.
func NewSeededSelector(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// Pick returns the name of one variant. It fails with ErrInvalidDistribution
// when the list is empty or no variant has a strictly positive weight.
func (s *Selector) Pick(variants []domain.Variant) (string, error) {
	var total float64
	for _, v := range variants {
		if v.AllocationWeight > 0 {
			total += v.AllocationWeight
		}
	}
	if total <= 0 {
		return "", fmt.Errorf("%d variants with no selectable weight: %w", len(variants), domain.ErrInvalidDistribution)
	}

	s.mu.Lock()
	draw := s.rng.Float64() * total
	s.mu.Unlock()

	last := ""
	for _, v := range variants {
		if v.AllocationWeight <= 0 {
			continue
		}
		last = v.Name
		draw -= v.AllocationWeight
		if draw < 0 {
			return v.Name, nil
		}
	}
	// Floating point rounding can leave a sliver past the final cumulative
	// bound; the draw then belongs to the last selectable variant.
	return last, nil
}

// ValidateDistribution rejects weight lists that could never produce an
// assignment. Used at experiment creation so a broken distribution is
// refused before any row is written.
func ValidateDistribution(variants []domain.Variant) error {
	if len(variants) == 0 {
		return fmt.Errorf("no variants: %w", domain.ErrInvalidDistribution)
	}
	positive := false
	for _, v := range variants {
		if v.AllocationWeight < 0 {
			return fmt.Errorf("variant %q has negative weight: %w", v.Name, domain.ErrInvalidDistribution)
		}
		if v.AllocationWeight > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("all variant weights are zero: %w", domain.ErrInvalidDistribution)
	}
	return nil
}
