package workflows_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/workflows"
)

type flakyApplier struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	applied  []domain.Effect
}

func (f *flakyApplier) Apply(ctx context.Context, eff domain.Effect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[eff.SubjectID]++
	if f.failures[eff.SubjectID] > 0 {
		f.failures[eff.SubjectID]--
		return errors.New("registry unavailable")
	}
	f.applied = append(f.applied, eff)
	return nil
}

type memStore struct {
	mu    sync.Mutex
	fails int
	saved []domain.Trip
}

func (s *memStore) Load(ctx context.Context, id string) (*domain.Trip, error) { return nil, domain.ErrNotFound }
func (s *memStore) Save(ctx context.Context, t *domain.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("connection refused")
	}
	s.saved = append(s.saved, *t)
	return nil
}
func (s *memStore) FindNonTerminalByVehicle(ctx context.Context, id string) (*domain.Trip, error) {
	return nil, nil
}
func (s *memStore) FindNonTerminalByDriver(ctx context.Context, id string) (*domain.Trip, error) {
	return nil, nil
}
func (s *memStore) List(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	return nil, nil
}

func newEnv(act *workflows.TripActivities) *testsuite.TestWorkflowEnvironment {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.TripEffectsWorkflow)
	env.RegisterWorkflow(workflows.ReconcileTripWorkflow)
	env.RegisterActivity(act)
	return env
}

func completionEffects() []domain.Effect {
	return []domain.Effect{
		domain.PresenceEffect(domain.EffectVehiclePresence, "v1", domain.PresenceIdle),
		domain.PresenceEffect(domain.EffectDriverPresence, "d1", domain.PresenceIdle),
		domain.NotifyEffect("d1", domain.NoticeTripCompleted, map[string]any{"trip_id": "t1"}),
	}
}

func TestTripEffectsWorkflow_AppliesAll(t *testing.T) {
	applier := &flakyApplier{failures: map[string]int{}, calls: map[string]int{}}
	env := newEnv(&workflows.TripActivities{Effects: applier})

	env.ExecuteWorkflow(workflows.TripEffectsWorkflow, workflows.TripEffectsInput{TripID: "t1", Effects: completionEffects()})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Len(t, applier.applied, 3)
}

func TestTripEffectsWorkflow_RetriesFailedEffect(t *testing.T) {
	applier := &flakyApplier{failures: map[string]int{"v1": 2}, calls: map[string]int{}}
	env := newEnv(&workflows.TripActivities{Effects: applier})

	env.ExecuteWorkflow(workflows.TripEffectsWorkflow, workflows.TripEffectsInput{TripID: "t1", Effects: completionEffects()[:1]})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, applier.calls["v1"])
	assert.Len(t, applier.applied, 1)
}

func TestTripEffectsWorkflow_GivesUpButAppliesTheRest(t *testing.T) {
	applier := &flakyApplier{failures: map[string]int{"v1": 100}, calls: map[string]int{}}
	env := newEnv(&workflows.TripActivities{Effects: applier})

	env.ExecuteWorkflow(workflows.TripEffectsWorkflow, workflows.TripEffectsInput{TripID: "t1", Effects: completionEffects()})

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 5, applier.calls["v1"])
	assert.Len(t, applier.applied, 2)
}

func TestReconcileTripWorkflow_RetriesUntilSaved(t *testing.T) {
	store := &memStore{fails: 3}
	env := newEnv(&workflows.TripActivities{Store: store})

	trip := domain.Trip{ID: "t1", Version: 7, Status: domain.StatusActive}
	env.ExecuteWorkflow(workflows.ReconcileTripWorkflow, workflows.ReconcileTripInput{Trip: trip})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Len(t, store.saved, 1)
	assert.Equal(t, int64(7), store.saved[0].Version)
}
