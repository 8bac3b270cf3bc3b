package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
	"github.com/samirrijal/safiri/internal/core/tracking"
	"github.com/samirrijal/safiri/internal/pkg/logging"
	"github.com/samirrijal/safiri/internal/pkg/metrics"
	"github.com/samirrijal/safiri/internal/pkg/telemetry"
)

const (
	defaultStoreTimeout = 2 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
)

// FactorEstimator produces the traffic factor applied to ETA predictions.
type FactorEstimator interface {
	EstimateFactor(ctx context.Context, point domain.GeoPoint, asOf time.Time) float64
}

type neutralTraffic struct{}

func (neutralTraffic) EstimateFactor(context.Context, domain.GeoPoint, time.Time) float64 {
	return tracking.MinFactor
}

// Option configures a TripManager.
type Option func(*TripManager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *TripManager) { m.now = now }
}

// WithStoreTimeout bounds every TripStore.Save call.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *TripManager) {
		if d > 0 {
			m.storeTimeout = d
		}
	}
}

// WithRetryBackoff sets the pause before the single save retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(m *TripManager) {
		if d >= 0 {
			m.retryBackoff = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *TripManager) { m.logger = logging.OrDefault(l) }
}

// WithEffectDispatcher sets who applies post-commit effects. Without one,
// effects are only returned to the caller.
func WithEffectDispatcher(d ports.EffectDispatcher) Option {
	return func(m *TripManager) { m.effects = d }
}

// WithReconciler hands trips whose save failed after the retry to r.
func WithReconciler(r ports.Reconciler) Option {
	return func(m *TripManager) { m.reconciler = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *TripManager) { m.tracer = t }
}

// TripManager owns the trip lifecycle. Mutations of one trip are applied one
// at a time in arrival order; different trips never share a lock.
type TripManager struct {
	store   ports.TripStore
	routes  ports.RouteDirectory
	fleet   ports.FleetRegistry
	traffic FactorEstimator

	effects    ports.EffectDispatcher
	reconciler ports.Reconciler

	obsMu     sync.RWMutex
	observers []ports.CommitObserver

	locks *keyLock
	live  *tripCache

	now          func() time.Time
	storeTimeout time.Duration
	retryBackoff time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewTripManager creates a new TripManager. traffic may be nil.
func NewTripManager(
	store ports.TripStore,
	routes ports.RouteDirectory,
	fleet ports.FleetRegistry,
	traffic FactorEstimator,
	opts ...Option,
) *TripManager {
	if traffic == nil {
		traffic = neutralTraffic{}
	}
	m := &TripManager{
		store:        store,
		routes:       routes,
		fleet:        fleet,
		traffic:      traffic,
		locks:        newKeyLock(),
		live:         newTripCache(),
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
		retryBackoff: defaultRetryBackoff,
		logger:       slog.Default(),
		tracer:       telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterObserver adds an observer for every accepted mutation.
func (m *TripManager) RegisterObserver(o ports.CommitObserver) {
	m.obsMu.Lock()
	m.observers = append(m.observers, o)
	m.obsMu.Unlock()
}

// StartTripInput describes a new trip.
type StartTripInput struct {
	VehicleID   string     `json:"vehicle_id" validate:"required"`
	RouteID     string     `json:"route_id" validate:"required"`
	DriverID    string     `json:"driver_id" validate:"required"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// LocationInput is one GPS fix for a trip.
type LocationInput struct {
	TripID     string    `json:"trip_id" validate:"required"`
	Lat        float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lon        float64   `json:"lon" validate:"gte=-180,lte=180"`
	SpeedKmh   float64   `json:"speed_kmh" validate:"gte=0,lte=200"`
	Heading    float64   `json:"heading" validate:"gte=0,lt=360"`
	Accuracy   float64   `json:"accuracy" validate:"gte=0"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OccupancyInput is a passenger count for a trip.
type OccupancyInput struct {
	TripID string `json:"trip_id" validate:"required"`
	Count  int    `json:"count" validate:"gte=0"`
}

// TransitionInput requests a lifecycle change.
type TransitionInput struct {
	TripID  string            `json:"trip_id" validate:"required"`
	To      domain.TripStatus `json:"to" validate:"required"`
	Reason  string            `json:"reason,omitempty" validate:"max=500"`
	ActorID string            `json:"-"`
}

// IncidentInput reports an incident on a trip.
type IncidentInput struct {
	TripID      string           `json:"trip_id" validate:"required"`
	Type        string           `json:"type" validate:"required,max=64"`
	Description string           `json:"description" validate:"max=1000"`
	Location    *domain.GeoPoint `json:"location,omitempty"`
	ReporterID  string           `json:"-"`
}

// StartTrip creates a trip for an idle vehicle and driver. A trip scheduled in
// the future starts as scheduled, otherwise it starts boarding.
func (m *TripManager) StartTrip(ctx context.Context, in StartTripInput) (*domain.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "TripManager.StartTrip", trace.WithAttributes(
		telemetry.AttrVehicleID.String(in.VehicleID),
		telemetry.AttrRouteID.String(in.RouteID),
	))
	out, err := m.startTrip(ctx, in)
	m.finish(ctx, span, domain.UpdateStatus, out, err)
	return out, err
}

func (m *TripManager) startTrip(ctx context.Context, in StartTripInput) (*domain.Outcome, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	// vehicle before driver, always
	unlockVehicle := m.locks.Lock("vehicle:" + in.VehicleID)
	defer unlockVehicle()
	unlockDriver := m.locks.Lock("driver:" + in.DriverID)
	defer unlockDriver()

	vehicle, err := m.fleet.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", in.VehicleID, err)
	}
	if !vehicle.InService {
		return nil, fmt.Errorf("%w: vehicle %s is out of service", domain.ErrVehicleUnavailable, vehicle.ID)
	}
	if vehicle.Capacity <= 0 {
		return nil, fmt.Errorf("%w: vehicle %s has capacity %d", domain.ErrInvalidCapacity, vehicle.ID, vehicle.Capacity)
	}
	if open, err := m.openTrip(ctx, func(t *domain.Trip) bool { return t.VehicleID == vehicle.ID }, m.store.FindNonTerminalByVehicle, vehicle.ID); err != nil {
		return nil, err
	} else if open != nil {
		return nil, fmt.Errorf("%w: vehicle %s is on trip %s", domain.ErrVehicleUnavailable, vehicle.ID, open.ID)
	}

	driver, err := m.fleet.GetDriver(ctx, in.DriverID)
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w", in.DriverID, err)
	}
	if !driver.Active {
		return nil, fmt.Errorf("%w: driver %s is inactive", domain.ErrDriverUnavailable, driver.ID)
	}
	if driver.SaccoID != vehicle.SaccoID {
		return nil, fmt.Errorf("%w: driver %s does not belong to sacco %s", domain.ErrDriverUnavailable, driver.ID, vehicle.SaccoID)
	}
	if open, err := m.openTrip(ctx, func(t *domain.Trip) bool { return t.DriverID == driver.ID }, m.store.FindNonTerminalByDriver, driver.ID); err != nil {
		return nil, err
	} else if open != nil {
		return nil, fmt.Errorf("%w: driver %s is on trip %s", domain.ErrDriverUnavailable, driver.ID, open.ID)
	}

	stages, err := m.routes.GetStages(ctx, in.RouteID)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", in.RouteID, err)
	}
	if len(stages) == 0 {
		return nil, domain.Validationf("route %s has no stages", in.RouteID)
	}

	now := m.now()
	trip := &domain.Trip{
		ID:                uuid.NewString(),
		VehicleID:         vehicle.ID,
		RouteID:           in.RouteID,
		DriverID:          driver.ID,
		SaccoID:           vehicle.SaccoID,
		Status:            domain.StatusBoarding,
		ScheduledAt:       stamp(in.ScheduledAt),
		CurrentStageIndex: tracking.Unmatched,
		Capacity:          vehicle.Capacity,
		CrowdLevel:        domain.CrowdEmpty,
		ETAs:              []domain.StageETA{},
		Incidents:         []domain.Incident{},
		CreatedAt:         now,
	}
	if in.ScheduledAt != nil && in.ScheduledAt.After(now) {
		trip.Status = domain.StatusScheduled
	} else {
		trip.StartedAt = stamp(&now)
	}

	unlockTrip := m.locks.Lock(trip.ID)
	defer unlockTrip()

	effects := []domain.Effect{
		domain.PresenceEffect(domain.EffectVehiclePresence, vehicle.ID, domain.PresenceActive),
		domain.PresenceEffect(domain.EffectDriverPresence, driver.ID, domain.PresenceActive),
		domain.NotifyEffect(driver.ID, domain.NoticeTripStarted, map[string]any{
			"trip_id": trip.ID, "route_id": trip.RouteID, "status": string(trip.Status),
		}),
	}
	return m.commit(ctx, domain.UpdateStatus, trip, now, effects)
}

// openTrip looks for a non-terminal trip in the live cache first, then in the store.
func (m *TripManager) openTrip(
	ctx context.Context,
	match func(*domain.Trip) bool,
	find func(context.Context, string) (*domain.Trip, error),
	id string,
) (*domain.Trip, error) {
	for _, t := range m.live.find(match) {
		if !t.Status.IsTerminal() {
			return t, nil
		}
	}
	t, err := find(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if t == nil {
		return nil, nil
	}
	// the store may lag behind a trip that already ended here
	if cached := m.live.get(t.ID); cached != nil && cached.Version > t.Version && cached.Status.IsTerminal() {
		return nil, nil
	}
	return t, nil
}

// ApplyLocationUpdate records a GPS fix, advances the stage index and
// recomputes ETAs. A stage match behind the current stage never moves it back.
func (m *TripManager) ApplyLocationUpdate(ctx context.Context, in LocationInput) (*domain.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "TripManager.ApplyLocationUpdate", trace.WithAttributes(
		telemetry.AttrTripID.String(in.TripID),
	))
	out, err := m.applyLocation(ctx, in)
	m.finish(ctx, span, domain.UpdateLocation, out, err)
	return out, err
}

func (m *TripManager) applyLocation(ctx context.Context, in LocationInput) (*domain.Outcome, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	point := domain.GeoPoint{Lat: in.Lat, Lon: in.Lon}

	// route stages and alerts are read before taking the trip lock
	known, err := m.current(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	if !known.Status.IsLive() {
		return nil, notLive(known)
	}
	stages, err := m.routes.GetStages(ctx, known.RouteID)
	if err != nil {
		return nil, fmt.Errorf("stages for trip %s: %w", known.ID, err)
	}
	factor := m.traffic.EstimateFactor(ctx, point, m.now())

	return m.mutate(ctx, in.TripID, domain.UpdateLocation, func(t *domain.Trip, now time.Time) ([]domain.Effect, error) {
		if !t.Status.IsLive() {
			return nil, notLive(t)
		}

		loc := domain.Location{
			Point:      point,
			SpeedKmh:   in.SpeedKmh,
			Heading:    in.Heading,
			Accuracy:   in.Accuracy,
			RecordedAt: in.RecordedAt,
		}
		if loc.RecordedAt.IsZero() {
			loc.RecordedAt = now
		}
		if t.Location != nil {
			t.Stats.DistanceMeters += tracking.Distance(t.Location.Point, point)
		}
		t.Location = &loc

		matched := tracking.FindCurrentStage(point, stages)
		next, regressed := tracking.AdvanceStage(t.CurrentStageIndex, matched)
		if regressed {
			metrics.StageRegressions.Inc()
			m.logger.Warn("stage regression ignored",
				"trip_id", t.ID, "current_stage", t.CurrentStageIndex, "matched_stage", matched)
		}
		t.CurrentStageIndex = next
		t.OffRoute = matched == tracking.Unmatched
		t.ETAs = tracking.PredictStageETAs(loc, stages, next, factor, now)
		return nil, nil
	})
}

// ApplyOccupancyUpdate records the passenger count and reclassifies the crowd level.
func (m *TripManager) ApplyOccupancyUpdate(ctx context.Context, in OccupancyInput) (*domain.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "TripManager.ApplyOccupancyUpdate", trace.WithAttributes(
		telemetry.AttrTripID.String(in.TripID),
		attribute.Int("safiri.occupancy", in.Count),
	))
	out, err := m.applyOccupancy(ctx, in)
	m.finish(ctx, span, domain.UpdateOccupancy, out, err)
	return out, err
}

func (m *TripManager) applyOccupancy(ctx context.Context, in OccupancyInput) (*domain.Outcome, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return m.mutate(ctx, in.TripID, domain.UpdateOccupancy, func(t *domain.Trip, _ time.Time) ([]domain.Effect, error) {
		if !t.Status.IsLive() {
			return nil, notLive(t)
		}
		if in.Count > t.Capacity && t.Capacity > 0 {
			return nil, fmt.Errorf("%w: %d passengers on a %d-seat vehicle", domain.ErrCapacityExceeded, in.Count, t.Capacity)
		}
		level, err := tracking.Classify(in.Count, t.Capacity)
		if err != nil {
			return nil, err
		}
		t.Occupancy = in.Count
		t.CrowdLevel = level
		return nil, nil
	})
}

// Transition moves a trip through its lifecycle. Terminal transitions
// release the vehicle and driver.
func (m *TripManager) Transition(ctx context.Context, in TransitionInput) (*domain.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "TripManager.Transition", trace.WithAttributes(
		telemetry.AttrTripID.String(in.TripID),
		telemetry.AttrStatus.String(string(in.To)),
	))
	out, err := m.transition(ctx, in)
	m.finish(ctx, span, domain.UpdateStatus, out, err)
	return out, err
}

func (m *TripManager) transition(ctx context.Context, in TransitionInput) (*domain.Outcome, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return m.mutate(ctx, in.TripID, domain.UpdateStatus, func(t *domain.Trip, now time.Time) ([]domain.Effect, error) {
		if !domain.CanTransition(t.Status, in.To) {
			return nil, &domain.InvalidTransitionError{From: t.Status, To: in.To}
		}
		t.Status = in.To

		switch in.To {
		case domain.StatusBoarding:
			if t.StartedAt == nil {
				t.StartedAt = stamp(&now)
			}
		case domain.StatusActive:
			if t.StartedAt == nil {
				t.StartedAt = stamp(&now)
			}
			t.DepartedAt = stamp(&now)
		case domain.StatusCompleted:
			t.EndedAt = stamp(&now)
			t.ETAs = []domain.StageETA{}
			t.Stats = completedStats(t)
			return releaseEffects(t, domain.NoticeTripCompleted), nil
		case domain.StatusCancelled:
			t.EndedAt = stamp(&now)
			t.ETAs = []domain.StageETA{}
			if in.Reason != "" {
				inc := domain.Incident{
					ID:          uuid.NewString(),
					Type:        "cancellation",
					Description: in.Reason,
					ReportedAt:  now,
					ReportedBy:  in.ActorID,
				}
				if t.Location != nil {
					p := t.Location.Point
					inc.Location = &p
				}
				t.Incidents = append(t.Incidents, inc)
			}
			return releaseEffects(t, domain.NoticeTripCancelled), nil
		}
		return nil, nil
	})
}

// AddIncident appends to the incident log of a non-terminal trip. Without a
// location the trip's last known position is used.
func (m *TripManager) AddIncident(ctx context.Context, in IncidentInput) (*domain.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "TripManager.AddIncident", trace.WithAttributes(
		telemetry.AttrTripID.String(in.TripID),
	))
	out, err := m.addIncident(ctx, in)
	m.finish(ctx, span, domain.UpdateIncident, out, err)
	return out, err
}

func (m *TripManager) addIncident(ctx context.Context, in IncidentInput) (*domain.Outcome, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var created domain.Incident
	out, err := m.mutate(ctx, in.TripID, domain.UpdateIncident, func(t *domain.Trip, now time.Time) ([]domain.Effect, error) {
		if t.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: trip %s is %s", domain.ErrTripClosed, t.ID, t.Status)
		}
		created = domain.Incident{
			ID:          uuid.NewString(),
			Type:        in.Type,
			Description: in.Description,
			ReportedAt:  now,
			ReportedBy:  in.ReporterID,
		}
		switch {
		case in.Location != nil:
			p := *in.Location
			created.Location = &p
		case t.Location != nil:
			p := t.Location.Point
			created.Location = &p
		}
		t.Incidents = append(t.Incidents, created)
		return []domain.Effect{
			domain.NotifyEffect(t.DriverID, domain.NoticeIncidentReported, map[string]any{
				"trip_id": t.ID, "incident_id": created.ID, "type": created.Type,
			}),
		}, nil
	})
	if out != nil {
		out.Incident = &created
	}
	return out, err
}

type mutation func(t *domain.Trip, now time.Time) ([]domain.Effect, error)

// mutate applies fn to a copy of the trip under the trip's lock and commits
// the copy when fn succeeds. Rejected mutations leave no trace.
func (m *TripManager) mutate(ctx context.Context, tripID string, kind domain.UpdateKind, fn mutation) (*domain.Outcome, error) {
	unlock := m.locks.Lock(tripID)
	defer unlock()

	current, err := m.current(ctx, tripID)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	now := m.now()
	effects, err := fn(next, now)
	if err != nil {
		return nil, err
	}
	return m.commit(ctx, kind, next, now, effects)
}

// commit must be called with the trip lock held. The cached copy is updated
// before the save so a failed save still leaves the optimistic state visible.
func (m *TripManager) commit(ctx context.Context, kind domain.UpdateKind, t *domain.Trip, now time.Time, effects []domain.Effect) (*domain.Outcome, error) {
	t.Version++
	t.UpdatedAt = now
	m.live.put(t)

	saveErr := m.persist(ctx, t)
	if saveErr == nil && t.Status.IsTerminal() {
		m.live.drop(t.ID)
	}

	out := &domain.Outcome{Kind: kind, Snapshot: t.Snapshot(), Effects: effects}

	m.obsMu.RLock()
	observers := m.observers
	m.obsMu.RUnlock()
	commit := domain.Commit{Kind: kind, Snapshot: out.Snapshot}
	for _, o := range observers {
		o.OnCommit(ctx, commit)
	}
	return out, saveErr
}

// persist saves with a bounded timeout and retries once after the backoff.
func (m *TripManager) persist(ctx context.Context, t *domain.Trip) error {
	var err error
retry:
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			metrics.PersistenceRetries.Inc()
			m.logger.Warn("trip save failed, retrying", "trip_id", t.ID, "version", t.Version, "error", err)
			timer := time.NewTimer(m.retryBackoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				err = errors.Join(err, ctx.Err())
				break retry
			}
		}
		saveCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
		err = m.store.Save(saveCtx, t)
		cancel()
		if err == nil {
			return nil
		}
	}

	metrics.PersistenceFailures.Inc()
	m.logger.Error("trip save failed after retry", "trip_id", t.ID, "version", t.Version, "error", err)
	if m.reconciler != nil {
		if rerr := m.reconciler.Enqueue(context.WithoutCancel(ctx), t.Clone()); rerr != nil {
			m.logger.Error("reconcile enqueue failed", "trip_id", t.ID, "error", rerr)
		}
	}
	return fmt.Errorf("%w: save trip %s: %w", domain.ErrPersistence, t.ID, err)
}

// current returns the latest known state of a trip; callers must Clone before mutating.
func (m *TripManager) current(ctx context.Context, tripID string) (*domain.Trip, error) {
	if t := m.live.get(tripID); t != nil {
		return t, nil
	}
	t, err := m.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return t, nil
	}
	return m.live.putIfNewer(t), nil
}

func (m *TripManager) load(ctx context.Context, tripID string) (*domain.Trip, error) {
	loadCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	t, err := m.store.Load(loadCtx, tripID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	case err != nil:
		return nil, fmt.Errorf("%w: load trip %s: %w", domain.ErrStoreUnavailable, tripID, err)
	case t == nil:
		return nil, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	return t, nil
}

// finish records the result of a public operation and applies its effects
// once the trip lock is released.
func (m *TripManager) finish(ctx context.Context, span trace.Span, kind domain.UpdateKind, out *domain.Outcome, err error) {
	defer span.End()

	result := "ok"
	if err != nil {
		result = domain.ErrorCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	metrics.TripUpdates.WithLabelValues(string(kind), result).Inc()

	if out == nil {
		return
	}
	span.SetAttributes(
		telemetry.AttrTripID.String(out.Snapshot.ID),
		attribute.Int64("safiri.version", out.Snapshot.Version),
	)
	if m.effects != nil && len(out.Effects) > 0 {
		if derr := m.effects.Dispatch(ctx, out.Snapshot.ID, out.Effects); derr != nil {
			m.logger.Warn("effect dispatch failed", "trip_id", out.Snapshot.ID, "error", derr)
		}
	}
}

func notLive(t *domain.Trip) error {
	return fmt.Errorf("%w: trip %s is %s", domain.ErrTripNotLive, t.ID, t.Status)
}

func releaseEffects(t *domain.Trip, notice string) []domain.Effect {
	return []domain.Effect{
		domain.PresenceEffect(domain.EffectVehiclePresence, t.VehicleID, domain.PresenceIdle),
		domain.PresenceEffect(domain.EffectDriverPresence, t.DriverID, domain.PresenceIdle),
		domain.NotifyEffect(t.DriverID, notice, map[string]any{
			"trip_id": t.ID, "route_id": t.RouteID, "status": string(t.Status),
		}),
	}
}

// completedStats derives duration from start to end and the average speed over it.
func completedStats(t *domain.Trip) domain.TripStats {
	stats := t.Stats
	start := t.StartedAt
	if start == nil {
		start = &t.CreatedAt
	}
	if t.EndedAt != nil {
		stats.Duration = t.EndedAt.Sub(*start)
	}
	if stats.Duration > 0 {
		stats.AverageSpeedKmh = stats.DistanceMeters / stats.Duration.Seconds() * 3.6
	}
	return stats
}

func stamp(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	v := *ts
	return &v
}
