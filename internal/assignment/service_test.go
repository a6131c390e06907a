package assignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/cache"
	"github.com/emiliopalmerini/splitlab/internal/domain"
)

type fakeExperimentRepo struct {
	mu          sync.Mutex
	experiments map[int64]*domain.Experiment
	nextID      int64
	getErr      error
}

func newFakeExperimentRepo() *fakeExperimentRepo {
	return &fakeExperimentRepo{experiments: make(map[int64]*domain.Experiment), nextID: 1}
}

func (r *fakeExperimentRepo) Create(_ context.Context, experiment *domain.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	experiment.ID = r.nextID
	r.nextID++
	r.experiments[experiment.ID] = experiment
	return nil
}

func (r *fakeExperimentRepo) GetByID(_ context.Context, id int64) (*domain.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.experiments[id], nil
}

func (r *fakeExperimentRepo) List(_ context.Context) ([]*domain.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Experiment, 0, len(r.experiments))
	for _, e := range r.experiments {
		out = append(out, e)
	}
	return out, nil
}

// fakeAssignmentRepo enforces the (experiment, user) unique constraint
// the way the store does, so concurrent inserts conflict for real.
type fakeAssignmentRepo struct {
	mu           sync.Mutex
	rows         map[string]*domain.Assignment
	nextID       int64
	inserts      int
	getErr       error
	insertErr    error
	beforeInsert func()
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{rows: make(map[string]*domain.Assignment), nextID: 1}
}

func pairKey(experimentID int64, userID string) string {
	return fmt.Sprintf("%d/%s", experimentID, userID)
}

func (r *fakeAssignmentRepo) Get(_ context.Context, experimentID int64, userID string) (*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	row, ok := r.rows[pairKey(experimentID, userID)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (r *fakeAssignmentRepo) Insert(_ context.Context, assignment *domain.Assignment) error {
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	key := pairKey(assignment.ExperimentID, assignment.UserID)
	if _, exists := r.rows[key]; exists {
		return domain.ErrAssignmentExists
	}
	assignment.ID = r.nextID
	r.nextID++
	copied := *assignment
	r.rows[key] = &copied
	r.inserts++
	return nil
}

type recordingMetrics struct {
	mu        sync.Mutex
	resolved  int
	fresh     int
	races     int
	cacheHits int
}

func (m *recordingMetrics) AssignmentResolved(_ context.Context, _ int64, _ string, fresh bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved++
	if fresh {
		m.fresh++
	}
}

func (m *recordingMetrics) RaceRecovered(_ context.Context, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.races++
}

func (m *recordingMetrics) CacheLookup(_ context.Context, _ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	}
}

func (m *recordingMetrics) EventEnqueued(_ context.Context, _ string) {}

func (m *recordingMetrics) Close(_ context.Context) error { return nil }

func newTestService(t *testing.T, experiments *fakeExperimentRepo, assignments *fakeAssignmentRepo, cacheClient *cache.Client) (*Service, *recordingMetrics) {
	t.Helper()
	metrics := &recordingMetrics{}
	svc := NewService(experiments, assignments, cacheClient, NewSeededSelector(1), metrics, zerolog.Nop())
	return svc, metrics
}

func seedExperiment(t *testing.T, repo *fakeExperimentRepo, variants ...domain.Variant) *domain.Experiment {
	t.Helper()
	experiment := &domain.Experiment{
		Name:      "checkout-flow",
		IsActive:  true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Variants:  variants,
	}
	if err := repo.Create(context.Background(), experiment); err != nil {
		t.Fatalf("seed experiment: %v", err)
	}
	return experiment
}

func TestResolveCreatesOnFirstTouch(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments,
		domain.Variant{Name: "control", AllocationWeight: 50},
		domain.Variant{Name: "treatment", AllocationWeight: 50},
	)

	svc, metrics := newTestService(t, experiments, assignments, nil)

	got, err := svc.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.ExperimentID != exp.ID || got.UserID != "user-1" {
		t.Errorf("assignment pair = (%d, %s), want (%d, user-1)", got.ExperimentID, got.UserID, exp.ID)
	}
	if got.VariantName != "control" && got.VariantName != "treatment" {
		t.Errorf("unexpected variant %q", got.VariantName)
	}
	if got.AssignedAt.IsZero() || got.AssignedAt.Location() != time.UTC {
		t.Errorf("AssignedAt = %v, want non-zero UTC", got.AssignedAt)
	}
	if metrics.fresh != 1 {
		t.Errorf("fresh resolutions = %d, want 1", metrics.fresh)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments,
		domain.Variant{Name: "control", AllocationWeight: 50},
		domain.Variant{Name: "treatment", AllocationWeight: 50},
	)

	svc, _ := newTestService(t, experiments, assignments, nil)

	first, err := svc.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := svc.Resolve(ctx, exp.ID, "user-1")
		if err != nil {
			t.Fatalf("Resolve %d failed: %v", i, err)
		}
		if again.VariantName != first.VariantName {
			t.Fatalf("variant changed from %q to %q on call %d", first.VariantName, again.VariantName, i)
		}
		if !again.AssignedAt.Equal(first.AssignedAt) {
			t.Fatalf("timestamp changed from %v to %v on call %d", first.AssignedAt, again.AssignedAt, i)
		}
	}
	if assignments.inserts != 1 {
		t.Errorf("inserts = %d, want 1", assignments.inserts)
	}
}

func TestResolveConcurrentFirstTouch(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments,
		domain.Variant{Name: "control", AllocationWeight: 50},
		domain.Variant{Name: "treatment", AllocationWeight: 50},
	)

	svc, _ := newTestService(t, experiments, assignments, nil)

	const callers = 32
	results := make([]*domain.Assignment, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.Resolve(ctx, exp.ID, "user-1")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].VariantName != results[0].VariantName {
			t.Fatalf("caller %d got variant %q, caller 0 got %q", i, results[i].VariantName, results[0].VariantName)
		}
		if !results[i].AssignedAt.Equal(results[0].AssignedAt) {
			t.Fatalf("caller %d got timestamp %v, caller 0 got %v", i, results[i].AssignedAt, results[0].AssignedAt)
		}
	}
	if assignments.inserts != 1 {
		t.Errorf("inserts = %d, want exactly 1", assignments.inserts)
	}
}

func TestResolveRecoversFromInsertRace(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments, domain.Variant{Name: "control", AllocationWeight: 100})

	// A competitor commits its row between our lookup miss and our insert.
	competitor := &domain.Assignment{
		ExperimentID: exp.ID,
		UserID:       "user-1",
		VariantName:  "control",
		AssignedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	raced := false
	assignments.beforeInsert = func() {
		if raced {
			return
		}
		raced = true
		assignments.mu.Lock()
		copied := *competitor
		copied.ID = assignments.nextID
		assignments.nextID++
		assignments.rows[pairKey(exp.ID, "user-1")] = &copied
		assignments.mu.Unlock()
	}

	svc, metrics := newTestService(t, experiments, assignments, nil)

	got, err := svc.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !got.AssignedAt.Equal(competitor.AssignedAt) {
		t.Errorf("got timestamp %v, want the competitor's %v", got.AssignedAt, competitor.AssignedAt)
	}
	if metrics.races != 1 {
		t.Errorf("races recovered = %d, want 1", metrics.races)
	}
	if metrics.fresh != 0 {
		t.Errorf("fresh resolutions = %d, want 0", metrics.fresh)
	}
}

func TestResolveExhaustsRetryBudget(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments, domain.Variant{Name: "control", AllocationWeight: 100})

	// Pathological store: every insert conflicts but no row is ever visible.
	assignments.insertErr = domain.ErrAssignmentExists

	svc, metrics := newTestService(t, experiments, assignments, nil)

	_, err := svc.Resolve(ctx, exp.ID, "user-1")
	if !errors.Is(err, domain.ErrAssignmentWriteFailed) {
		t.Fatalf("expected ErrAssignmentWriteFailed, got %v", err)
	}
	if metrics.races != maxAttempts {
		t.Errorf("races = %d, want %d", metrics.races, maxAttempts)
	}
}

func TestResolveUnknownExperiment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newFakeExperimentRepo(), newFakeAssignmentRepo(), nil)

	_, err := svc.Resolve(ctx, 404, "user-1")
	if !errors.Is(err, domain.ErrExperimentNotFound) {
		t.Fatalf("expected ErrExperimentNotFound, got %v", err)
	}
}

func TestResolveExperimentWithoutVariants(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	exp := seedExperiment(t, experiments)

	svc, _ := newTestService(t, experiments, newFakeAssignmentRepo(), nil)

	_, err := svc.Resolve(ctx, exp.ID, "user-1")
	if !errors.Is(err, domain.ErrExperimentNotFound) {
		t.Fatalf("expected ErrExperimentNotFound, got %v", err)
	}
}

func TestResolveWrapsStoreFailures(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments, domain.Variant{Name: "control", AllocationWeight: 100})

	assignments.insertErr = errors.New("disk full")

	svc, _ := newTestService(t, experiments, assignments, nil)

	_, err := svc.Resolve(ctx, exp.ID, "user-1")
	if !errors.Is(err, domain.ErrAssignmentWriteFailed) {
		t.Fatalf("expected ErrAssignmentWriteFailed, got %v", err)
	}
}

// The cache is an optimization only: resolving with a warm cache, a cold
// cache and no cache at all must produce the same assignment.
func TestResolveCacheTransparency(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments, domain.Variant{Name: "control", AllocationWeight: 100})

	cached := cache.NewClient(cache.NewMemoryBackend(), 0, 0, zerolog.Nop())
	withCache, metrics := newTestService(t, experiments, assignments, cached)
	withoutCache, _ := newTestService(t, experiments, assignments, nil)

	first, err := withCache.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("Resolve with cold cache failed: %v", err)
	}

	warm, err := withCache.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("Resolve with warm cache failed: %v", err)
	}
	if metrics.cacheHits == 0 {
		t.Error("expected at least one cache hit on the second resolve")
	}

	uncached, err := withoutCache.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("Resolve without cache failed: %v", err)
	}

	for name, got := range map[string]*domain.Assignment{"warm": warm, "uncached": uncached} {
		if got.VariantName != first.VariantName || !got.AssignedAt.Equal(first.AssignedAt) {
			t.Errorf("%s resolve = (%s, %v), want (%s, %v)",
				name, got.VariantName, got.AssignedAt, first.VariantName, first.AssignedAt)
		}
	}
	if assignments.inserts != 1 {
		t.Errorf("inserts = %d, want 1", assignments.inserts)
	}
}

// A failing cache backend must never surface to callers.
type brokenBackend struct{}

func (brokenBackend) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func (brokenBackend) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return errors.New("backend down")
}

func TestResolveSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	assignments := newFakeAssignmentRepo()
	exp := seedExperiment(t, experiments, domain.Variant{Name: "control", AllocationWeight: 100})

	broken := cache.NewClient(brokenBackend{}, 0, 0, zerolog.Nop())
	svc, _ := newTestService(t, experiments, assignments, broken)

	first, err := svc.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("Resolve with broken cache failed: %v", err)
	}
	again, err := svc.Resolve(ctx, exp.ID, "user-1")
	if err != nil {
		t.Fatalf("second Resolve with broken cache failed: %v", err)
	}
	if again.VariantName != first.VariantName {
		t.Errorf("variant changed from %q to %q", first.VariantName, again.VariantName)
	}
}

func TestCreateExperimentRejectsInvalidDistribution(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	svc, _ := newTestService(t, experiments, newFakeAssignmentRepo(), nil)

	_, err := svc.CreateExperiment(ctx, "broken", nil, nil)
	if !errors.Is(err, domain.ErrInvalidDistribution) {
		t.Fatalf("expected ErrInvalidDistribution, got %v", err)
	}
	if len(experiments.experiments) != 0 {
		t.Error("invalid experiment was persisted")
	}
}

func TestCreateExperimentPersists(t *testing.T) {
	ctx := context.Background()
	experiments := newFakeExperimentRepo()
	svc, _ := newTestService(t, experiments, newFakeAssignmentRepo(), nil)

	desc := "new checkout button"
	exp, err := svc.CreateExperiment(ctx, "checkout", &desc, []domain.Variant{
		{Name: "control", AllocationWeight: 50},
		{Name: "treatment", AllocationWeight: 50},
	})
	if err != nil {
		t.Fatalf("CreateExperiment failed: %v", err)
	}
	if exp.ID == 0 {
		t.Error("experiment id was not assigned")
	}
	if !exp.IsActive {
		t.Error("new experiment should be active")
	}
	if exp.CreatedAt.Nanosecond() != 0 {
		t.Errorf("CreatedAt not truncated to seconds: %v", exp.CreatedAt)
	}
}
