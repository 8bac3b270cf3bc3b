package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/usecases"
)

// --- In-memory TripStore ---

type memStore struct {
	mu     sync.Mutex
	trips  map[string]domain.Trip
	saves  int
	saveFn func(ctx context.Context, t *domain.Trip) error
	listFn func(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error)
}

func newMemStore() *memStore {
	return &memStore{trips: make(map[string]domain.Trip)}
}

func (s *memStore) put(t domain.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = *t.Clone()
}

func (s *memStore) get(id string) (domain.Trip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	return t, ok
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) Load(ctx context.Context, id string) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, t *domain.Trip) error {
	s.mu.Lock()
	s.saves++
	fn := s.saveFn
	s.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, t); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.trips[t.ID]; ok && cur.Version >= t.Version {
		return nil
	}
	s.trips[t.ID] = *t.Clone()
	return nil
}

func (s *memStore) findOpen(match func(domain.Trip) bool) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if match(t) && !t.Status.IsTerminal() {
			return t.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) FindNonTerminalByVehicle(ctx context.Context, vehicleID string) (*domain.Trip, error) {
	return s.findOpen(func(t domain.Trip) bool { return t.VehicleID == vehicleID })
}

func (s *memStore) FindNonTerminalByDriver(ctx context.Context, driverID string) (*domain.Trip, error) {
	return s.findOpen(func(t domain.Trip) bool { return t.DriverID == driverID })
}

func (s *memStore) List(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	if s.listFn != nil {
		return s.listFn(ctx, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trip
	for _, t := range s.trips {
		if f.Matches(&t) {
			out = append(out, *t.Clone())
		}
	}
	return out, nil
}

// --- Mock RouteDirectory ---

type mockRoutes struct {
	stages map[string][]domain.Stage
}

func (m *mockRoutes) GetRoute(ctx context.Context, id string) (*domain.Route, error) {
	st, ok := m.stages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Route{ID: id, Name: "Route " + id, Stages: st}, nil
}

func (m *mockRoutes) GetStages(ctx context.Context, id string) ([]domain.Stage, error) {
	st, ok := m.stages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st, nil
}

// --- Mock FleetRegistry ---

type mockFleet struct {
	mu       sync.Mutex
	vehicles map[string]domain.Vehicle
	drivers  map[string]domain.Driver
}

func (m *mockFleet) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (m *mockFleet) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *mockFleet) SetVehiclePresence(ctx context.Context, id string, p domain.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.vehicles[id]
	v.Presence = p
	m.vehicles[id] = v
	return nil
}

func (m *mockFleet) SetDriverPresence(ctx context.Context, id string, p domain.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.drivers[id]
	d.Presence = p
	m.drivers[id] = d
	return nil
}

// --- Recorders ---

type recordingReconciler struct {
	mu    sync.Mutex
	trips []*domain.Trip
}

func (r *recordingReconciler) Enqueue(ctx context.Context, t *domain.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips = append(r.trips, t)
	return nil
}

type recordingDispatcher struct {
	mu      sync.Mutex
	effects []domain.Effect
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, tripID string, effects []domain.Effect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effects = append(d.effects, effects...)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- Fixture ---

// one kilometre of latitude near the equator.
const kmLat = 1000.0 / 111195.0

var routeStages = []domain.Stage{
	{ID: "st-0", RouteID: "r1", Name: "Kencom", Location: domain.GeoPoint{Lat: 0, Lon: 36.8}, Sequence: 1},
	{ID: "st-1", RouteID: "r1", Name: "Museum Hill", Location: domain.GeoPoint{Lat: kmLat, Lon: 36.8}, Sequence: 2},
	{ID: "st-2", RouteID: "r1", Name: "Westlands", Location: domain.GeoPoint{Lat: 2 * kmLat, Lon: 36.8}, Sequence: 3},
}

type fixture struct {
	mgr   *usecases.TripManager
	store *memStore
	fleet *mockFleet
	clock *clock
}

func newFixture(t *testing.T, opts ...usecases.Option) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		fleet: &mockFleet{
			vehicles: map[string]domain.Vehicle{
				"v1": {ID: "v1", SaccoID: "s1", Plate: "KDA 101A", Capacity: 14, InService: true},
				"v2": {ID: "v2", SaccoID: "s1", Plate: "KDA 202B", Capacity: 14, InService: true},
				"v3": {ID: "v3", SaccoID: "s1", Plate: "KDA 303C", Capacity: 14, InService: false},
			},
			drivers: map[string]domain.Driver{
				"d1": {ID: "d1", SaccoID: "s1", Name: "Wanjiru", Active: true},
				"d2": {ID: "d2", SaccoID: "s1", Name: "Otieno", Active: true},
				"d3": {ID: "d3", SaccoID: "s2", Name: "Kamau", Active: true},
				"d4": {ID: "d4", SaccoID: "s1", Name: "Achieng", Active: false},
			},
		},
		clock: &clock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
	}
	routes := &mockRoutes{stages: map[string][]domain.Stage{"r1": routeStages}}
	opts = append([]usecases.Option{
		usecases.WithClock(f.clock.Now),
		usecases.WithRetryBackoff(time.Millisecond),
	}, opts...)
	f.mgr = usecases.NewTripManager(f.store, routes, f.fleet, nil, opts...)
	return f
}

func (f *fixture) start(t *testing.T, vehicleID, driverID string) domain.TripSnapshot {
	t.Helper()
	out, err := f.mgr.StartTrip(context.Background(), usecases.StartTripInput{
		VehicleID: vehicleID, RouteID: "r1", DriverID: driverID,
	})
	require.NoError(t, err)
	return out.Snapshot
}

func (f *fixture) move(t *testing.T, tripID string, p domain.GeoPoint) domain.TripSnapshot {
	t.Helper()
	out, err := f.mgr.ApplyLocationUpdate(context.Background(), usecases.LocationInput{
		TripID: tripID, Lat: p.Lat, Lon: p.Lon, SpeedKmh: 30,
	})
	require.NoError(t, err)
	return out.Snapshot
}

// --- Tests ---

func TestTripManager_StartTrip(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.StartTrip(context.Background(), usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d1"})
	require.NoError(t, err)

	snap := out.Snapshot
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, domain.StatusBoarding, snap.Status)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, 14, snap.Capacity)
	assert.Equal(t, "s1", snap.SaccoID)
	assert.Equal(t, -1, snap.CurrentStageIndex)
	assert.Equal(t, domain.CrowdEmpty, snap.CrowdLevel)
	require.NotNil(t, snap.StartedAt)
	assert.True(t, snap.StartedAt.Equal(f.clock.Now()))

	stored, ok := f.store.get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), stored.Version)

	require.Len(t, out.Effects, 3)
	assert.Equal(t, domain.PresenceEffect(domain.EffectVehiclePresence, "v1", domain.PresenceActive), out.Effects[0])
	assert.Equal(t, domain.PresenceEffect(domain.EffectDriverPresence, "d1", domain.PresenceActive), out.Effects[1])
	assert.Equal(t, domain.EffectNotify, out.Effects[2].Kind)
}

func TestTripManager_StartTripScheduled(t *testing.T) {
	f := newFixture(t)
	later := f.clock.Now().Add(30 * time.Minute)

	out, err := f.mgr.StartTrip(context.Background(), usecases.StartTripInput{
		VehicleID: "v1", RouteID: "r1", DriverID: "d1", ScheduledAt: &later,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, out.Snapshot.Status)
	assert.Nil(t, out.Snapshot.StartedAt)
	require.NotNil(t, out.Snapshot.ScheduledAt)
	assert.True(t, out.Snapshot.ScheduledAt.Equal(later))
}

func TestTripManager_SingleActiveTripPerVehicle(t *testing.T) {
	f := newFixture(t)
	first := f.start(t, "v1", "d1")

	_, err := f.mgr.StartTrip(context.Background(), usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d2"})
	assert.ErrorIs(t, err, domain.ErrVehicleUnavailable)

	_, err = f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: first.ID, To: domain.StatusCancelled})
	require.NoError(t, err)

	second := f.start(t, "v1", "d2")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTripManager_SingleActiveTripFromStore(t *testing.T) {
	f := newFixture(t)
	f.store.put(domain.Trip{ID: "old", VehicleID: "v1", DriverID: "d9", RouteID: "r1", Status: domain.StatusActive, Version: 4})

	_, err := f.mgr.StartTrip(context.Background(), usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d1"})
	assert.ErrorIs(t, err, domain.ErrVehicleUnavailable)
}

func TestTripManager_StartTripRejections(t *testing.T) {
	f := newFixture(t)
	f.start(t, "v2", "d2")

	tests := []struct {
		name    string
		in      usecases.StartTripInput
		wantErr error
	}{
		{"missing fields", usecases.StartTripInput{VehicleID: "v1"}, domain.ErrValidation},
		{"unknown vehicle", usecases.StartTripInput{VehicleID: "nope", RouteID: "r1", DriverID: "d1"}, domain.ErrNotFound},
		{"vehicle out of service", usecases.StartTripInput{VehicleID: "v3", RouteID: "r1", DriverID: "d1"}, domain.ErrVehicleUnavailable},
		{"inactive driver", usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d4"}, domain.ErrDriverUnavailable},
		{"driver of another sacco", usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d3"}, domain.ErrDriverUnavailable},
		{"driver already on a trip", usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d2"}, domain.ErrDriverUnavailable},
		{"unknown route", usecases.StartTripInput{VehicleID: "v1", RouteID: "r9", DriverID: "d1"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.StartTrip(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTripManager_TransitionClosure(t *testing.T) {
	targets := append(append([]domain.TripStatus(nil), domain.AllStatuses...), "parked")

	for _, from := range domain.AllStatuses {
		for _, to := range targets {
			f := newFixture(t)
			f.store.put(domain.Trip{ID: "t1", VehicleID: "v1", DriverID: "d1", RouteID: "r1", Status: from, Version: 3, Capacity: 14})

			out, err := f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: "t1", To: to})
			stored, _ := f.store.get("t1")

			if domain.CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, out.Snapshot.Status)
				assert.Equal(t, to, stored.Status)
				assert.Equal(t, int64(4), stored.Version)
				continue
			}

			var terr *domain.InvalidTransitionError
			require.ErrorAs(t, err, &terr, "%s -> %s", from, to)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.Equal(t, from, terr.From)
			assert.Equal(t, to, terr.To)
			assert.Nil(t, out)
			assert.Equal(t, from, stored.Status, "stored status changed on rejected %s -> %s", from, to)
			assert.Equal(t, int64(3), stored.Version)
		}
	}
}

func TestTripManager_TransitionTimestamps(t *testing.T) {
	f := newFixture(t)
	later := f.clock.Now().Add(10 * time.Minute)
	out, err := f.mgr.StartTrip(context.Background(), usecases.StartTripInput{VehicleID: "v1", RouteID: "r1", DriverID: "d1", ScheduledAt: &later})
	require.NoError(t, err)
	id := out.Snapshot.ID

	f.clock.Advance(10 * time.Minute)
	out, err = f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: id, To: domain.StatusBoarding})
	require.NoError(t, err)
	require.NotNil(t, out.Snapshot.StartedAt)
	assert.True(t, out.Snapshot.StartedAt.Equal(later))
	assert.Nil(t, out.Snapshot.DepartedAt)

	f.clock.Advance(3 * time.Minute)
	out, err = f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: id, To: domain.StatusActive})
	require.NoError(t, err)
	require.NotNil(t, out.Snapshot.DepartedAt)
	assert.True(t, out.Snapshot.DepartedAt.Equal(later.Add(3*time.Minute)))
	assert.Empty(t, out.Effects)
}

func TestTripManager_MonotonicStageIndex(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	steps := []struct {
		point     domain.GeoPoint
		wantIdx   int
		wantOff   bool
		wantTotal int
	}{
		{routeStages[0].Location, 0, false, 2},
		{routeStages[1].Location, 1, false, 1},
		{routeStages[0].Location, 1, false, 1},
		{domain.GeoPoint{Lat: 1, Lon: 36.8}, 1, true, 1},
		{routeStages[2].Location, 2, false, 0},
		{routeStages[1].Location, 2, false, 0},
	}
	prev := -1
	for i, s := range steps {
		snap := f.move(t, trip.ID, s.point)
		assert.Equal(t, s.wantIdx, snap.CurrentStageIndex, "step %d", i)
		assert.Equal(t, s.wantOff, snap.OffRoute, "step %d", i)
		assert.Len(t, snap.ETAs, s.wantTotal, "step %d", i)
		assert.GreaterOrEqual(t, snap.CurrentStageIndex, prev)
		prev = snap.CurrentStageIndex
	}
}

func TestTripManager_ETAScenario(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	snap := f.move(t, trip.ID, routeStages[0].Location)
	require.Len(t, snap.ETAs, 2)
	assert.Equal(t, 1, snap.ETAs[0].StageIndex)
	assert.Equal(t, "Museum Hill", snap.ETAs[0].StageName)
	assert.Equal(t, 2, snap.ETAs[0].Minutes)
	assert.InDelta(t, 144, snap.ETAs[0].ETA.Sub(f.clock.Now()).Seconds(), 0.5)
}

func TestTripManager_OccupancyScenario(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	want := []struct {
		count int
		level domain.CrowdLevel
	}{
		{0, domain.CrowdEmpty},
		{3, domain.CrowdLow},
		{9, domain.CrowdHigh},
		{14, domain.CrowdStanding},
	}
	for _, w := range want {
		out, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: w.count})
		require.NoError(t, err)
		assert.Equal(t, w.level, out.Snapshot.CrowdLevel, "count %d", w.count)
	}

	_, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: 15})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	snap, err := f.mgr.GetTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, snap.Occupancy)
	assert.Equal(t, domain.CrowdStanding, snap.CrowdLevel)
}

func TestTripManager_UpdatesRequireLiveTrip(t *testing.T) {
	f := newFixture(t)
	f.store.put(domain.Trip{ID: "sched", VehicleID: "v1", DriverID: "d1", RouteID: "r1", Status: domain.StatusScheduled, Capacity: 14})
	f.store.put(domain.Trip{ID: "done", VehicleID: "v2", DriverID: "d2", RouteID: "r1", Status: domain.StatusCompleted, Capacity: 14})

	for _, id := range []string{"sched", "done"} {
		_, err := f.mgr.ApplyLocationUpdate(context.Background(), usecases.LocationInput{TripID: id, Lat: 0, Lon: 36.8})
		assert.ErrorIs(t, err, domain.ErrTripNotLive, id)

		_, err = f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: id, Count: 2})
		assert.ErrorIs(t, err, domain.ErrTripNotLive, id)
	}

	_, err := f.mgr.ApplyLocationUpdate(context.Background(), usecases.LocationInput{TripID: "missing", Lat: 0, Lon: 36.8})
	assert.ErrorIs(t, err, domain.ErrTripNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripManager_LocationValidation(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	bad := []usecases.LocationInput{
		{TripID: trip.ID, Lat: 91, Lon: 36.8},
		{TripID: trip.ID, Lat: 0, Lon: 181},
		{TripID: trip.ID, Lat: 0, Lon: 36.8, SpeedKmh: -1},
		{TripID: trip.ID, Lat: 0, Lon: 36.8, Heading: 360},
		{Lat: 0, Lon: 36.8},
	}
	for _, in := range bad {
		_, err := f.mgr.ApplyLocationUpdate(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}

	snap, err := f.mgr.GetTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Nil(t, snap.Location)
}

func TestTripManager_CompletionStats(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	f.clock.Advance(time.Minute)
	f.move(t, trip.ID, routeStages[0].Location)
	f.clock.Advance(4 * time.Minute)
	f.move(t, trip.ID, routeStages[1].Location)

	_, err := f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: trip.ID, To: domain.StatusActive})
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	out, err := f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: trip.ID, To: domain.StatusCompleted})
	require.NoError(t, err)

	stats := out.Snapshot.Stats
	assert.Equal(t, 10*time.Minute, stats.Duration)
	assert.InDelta(t, 1000, stats.DistanceMeters, 1)
	assert.InDelta(t, 6.0, stats.AverageSpeedKmh, 0.01)
	assert.Empty(t, out.Snapshot.ETAs)
	require.NotNil(t, out.Snapshot.EndedAt)

	require.Len(t, out.Effects, 3)
	assert.Equal(t, domain.PresenceEffect(domain.EffectVehiclePresence, "v1", domain.PresenceIdle), out.Effects[0])
	assert.Equal(t, domain.PresenceEffect(domain.EffectDriverPresence, "d1", domain.PresenceIdle), out.Effects[1])
	assert.Equal(t, domain.NoticeTripCompleted, out.Effects[2].Notice)
	assert.Equal(t, "d1", out.Effects[2].SubjectID)
}

func TestTripManager_TerminalTripIsImmutable(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")
	_, err := f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: trip.ID, To: domain.StatusCancelled})
	require.NoError(t, err)

	_, err = f.mgr.ApplyLocationUpdate(context.Background(), usecases.LocationInput{TripID: trip.ID, Lat: 0, Lon: 36.8})
	assert.ErrorIs(t, err, domain.ErrTripNotLive)
	_, err = f.mgr.AddIncident(context.Background(), usecases.IncidentInput{TripID: trip.ID, Type: "breakdown"})
	assert.ErrorIs(t, err, domain.ErrTripClosed)
	_, err = f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: trip.ID, To: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, _ := f.store.get(trip.ID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestTripManager_CancelWithReason(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")
	f.move(t, trip.ID, routeStages[0].Location)

	out, err := f.mgr.Transition(context.Background(), usecases.TransitionInput{
		TripID: trip.ID, To: domain.StatusCancelled, Reason: "tyre burst", ActorID: "d1",
	})
	require.NoError(t, err)

	require.Len(t, out.Snapshot.Incidents, 1)
	inc := out.Snapshot.Incidents[0]
	assert.Equal(t, "cancellation", inc.Type)
	assert.Equal(t, "tyre burst", inc.Description)
	assert.Equal(t, "d1", inc.ReportedBy)
	require.NotNil(t, inc.Location)
	assert.Equal(t, routeStages[0].Location, *inc.Location)
	assert.Equal(t, domain.NoticeTripCancelled, out.Effects[2].Notice)
}

func TestTripManager_CancelWithoutReason(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	out, err := f.mgr.Transition(context.Background(), usecases.TransitionInput{TripID: trip.ID, To: domain.StatusCancelled})
	require.NoError(t, err)
	assert.Empty(t, out.Snapshot.Incidents)
}

func TestTripManager_AddIncident(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")
	f.move(t, trip.ID, routeStages[1].Location)

	out, err := f.mgr.AddIncident(context.Background(), usecases.IncidentInput{
		TripID: trip.ID, Type: "police_check", Description: "crackdown at roundabout", ReporterID: "d1",
	})
	require.NoError(t, err)
	require.NotNil(t, out.Incident)
	assert.NotEmpty(t, out.Incident.ID)
	require.NotNil(t, out.Incident.Location)
	assert.Equal(t, routeStages[1].Location, *out.Incident.Location)
	require.Len(t, out.Snapshot.Incidents, 1)
	assert.Equal(t, domain.NoticeIncidentReported, out.Effects[0].Notice)

	explicit := domain.GeoPoint{Lat: -1.3, Lon: 36.9}
	out, err = f.mgr.AddIncident(context.Background(), usecases.IncidentInput{TripID: trip.ID, Type: "accident", Location: &explicit})
	require.NoError(t, err)
	assert.Equal(t, explicit, *out.Incident.Location)
	assert.Len(t, out.Snapshot.Incidents, 2)

	_, err = f.mgr.AddIncident(context.Background(), usecases.IncidentInput{TripID: trip.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTripManager_PersistenceRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	var calls int
	f.store.mu.Lock()
	f.store.saves = 0
	f.store.saveFn = func(ctx context.Context, tr *domain.Trip) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	f.store.mu.Unlock()

	out, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.saveCount())

	stored, _ := f.store.get(trip.ID)
	assert.Equal(t, out.Snapshot.Version, stored.Version)
}

func TestTripManager_PersistenceFailure(t *testing.T) {
	rec := &recordingReconciler{}
	f := newFixture(t, usecases.WithReconciler(rec))
	trip := f.start(t, "v1", "d1")

	var commits []domain.Commit
	f.mgr.RegisterObserver(ports.CommitObserverFunc(func(ctx context.Context, c domain.Commit) {
		commits = append(commits, c)
	}))

	f.store.mu.Lock()
	f.store.saves = 0
	f.store.saveFn = func(ctx context.Context, tr *domain.Trip) error { return errors.New("db down") }
	f.store.mu.Unlock()

	out, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: 6})
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.NotNil(t, out)
	assert.Equal(t, 6, out.Snapshot.Occupancy)
	assert.Equal(t, 2, f.store.saveCount())

	// optimistic state stays visible
	snap, err := f.mgr.GetTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Occupancy)
	assert.Equal(t, int64(2), snap.Version)

	require.Len(t, commits, 1)
	assert.Equal(t, int64(2), commits[0].Snapshot.Version)

	require.Len(t, rec.trips, 1)
	assert.Equal(t, trip.ID, rec.trips[0].ID)
	assert.Equal(t, int64(2), rec.trips[0].Version)

	stored, _ := f.store.get(trip.ID)
	assert.Equal(t, int64(1), stored.Version)
}

func TestTripManager_StalledStoreTimesOut(t *testing.T) {
	f := newFixture(t, usecases.WithStoreTimeout(20*time.Millisecond))
	trip := f.start(t, "v1", "d1")

	f.store.mu.Lock()
	f.store.saveFn = func(ctx context.Context, tr *domain.Trip) error {
		<-ctx.Done()
		return ctx.Err()
	}
	f.store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: 1})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("update blocked on a stalled store")
	}

	// the trip is not left locked
	f.store.mu.Lock()
	f.store.saveFn = nil
	f.store.mu.Unlock()
	out, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Snapshot.Version)
}

func TestTripManager_ConcurrentUpdatesSerialized(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	var (
		mu       sync.Mutex
		versions []int64
	)
	f.mgr.RegisterObserver(ports.CommitObserverFunc(func(ctx context.Context, c domain.Commit) {
		mu.Lock()
		versions = append(versions, c.Snapshot.Version)
		mu.Unlock()
	}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: i % 15})
				assert.NoError(t, err)
				return
			}
			_, err := f.mgr.ApplyLocationUpdate(context.Background(), usecases.LocationInput{TripID: trip.ID, Lat: 0, Lon: 36.8, SpeedKmh: 20})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := f.mgr.GetTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), snap.Version)

	require.Len(t, versions, n)
	for i, v := range versions {
		assert.Equal(t, int64(i+2), v, "commit %d out of order", i)
	}
}

func TestTripManager_SnapshotsAreIsolated(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")
	snap := f.move(t, trip.ID, routeStages[0].Location)

	snap.Location.Point.Lat = 42
	snap.ETAs[0].Minutes = 99

	fresh, err := f.mgr.GetTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fresh.Location.Point.Lat)
	assert.Equal(t, 2, fresh.ETAs[0].Minutes)
}

func TestTripManager_EffectDispatch(t *testing.T) {
	d := &recordingDispatcher{}
	f := newFixture(t, usecases.WithEffectDispatcher(d))
	f.start(t, "v1", "d1")

	require.Len(t, d.effects, 3)
	assert.Equal(t, domain.EffectVehiclePresence, d.effects[0].Kind)
}

func TestTripManager_GetActiveTrips(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, "v1", "d1")
	f.clock.Advance(time.Second)
	b := f.start(t, "v2", "d2")
	f.store.put(domain.Trip{ID: "other-route", VehicleID: "v9", RouteID: "r2", Status: domain.StatusActive})
	f.store.put(domain.Trip{ID: "finished", VehicleID: "v8", RouteID: "r1", Status: domain.StatusCompleted})

	trips, err := f.mgr.GetActiveTrips(context.Background(), domain.TripFilter{RouteID: "r1"})
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, a.ID, trips[0].ID)
	assert.Equal(t, b.ID, trips[1].ID)

	trips, err = f.mgr.GetActiveTrips(context.Background(), domain.TripFilter{Statuses: []domain.TripStatus{domain.StatusCompleted}})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "finished", trips[0].ID)
}

func TestTripManager_GetActiveTripsPrefersNewerLiveState(t *testing.T) {
	f := newFixture(t)
	trip := f.start(t, "v1", "d1")

	f.store.mu.Lock()
	f.store.saveFn = func(ctx context.Context, tr *domain.Trip) error { return errors.New("db down") }
	f.store.mu.Unlock()
	_, err := f.mgr.ApplyOccupancyUpdate(context.Background(), usecases.OccupancyInput{TripID: trip.ID, Count: 8})
	require.ErrorIs(t, err, domain.ErrPersistence)

	trips, err := f.mgr.GetActiveTrips(context.Background(), domain.TripFilter{})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, 8, trips[0].Occupancy)
	assert.Equal(t, int64(2), trips[0].Version)
}

func TestTripManager_GetTripNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.GetTrip(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTripNotFound)
}
