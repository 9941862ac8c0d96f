// Package trip implements the scan-driven trip state machine: each driver
// moves Idle → InProgress on a start-checkpoint scan, accumulates waypoint
// scans, and returns to Idle when the trip completes, is cancelled, or is
// administratively cleared. Completed trips with revenue are credited to the
// ledger, and every location-affecting transition publishes a
// location_update through the dispatcher.
package trip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/geo"
	"github.com/markromolecule/lakbai-core/internal/ledger"
	"github.com/markromolecule/lakbai-core/internal/notify"
	"github.com/markromolecule/lakbai-core/internal/repo"
)

// Service is the trip state machine. It owns all mutations of trip state;
// the store enforces the at-most-one-active-trip invariant atomically per
// driver, so Service needs no cross-driver locking of its own.
//
// Scan idempotency is the caller's responsibility: hold a Guard token around
// the whole scan pipeline. Service guarantees only "at most one active
// trip", not "at most one call per physical scan".
type Service struct {
	store      repo.TripStore
	ledger     *ledger.Service
	dispatcher *notify.Dispatcher
	log        *slog.Logger
	now        func() time.Time
}

// NewService constructs the trip state machine.
func NewService(store repo.TripStore, ledger *ledger.Service, dispatcher *notify.Dispatcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:      store,
		ledger:     ledger,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// Start begins a new trip at the given start checkpoint.
// Returns a *domain.TripConflictError if the driver already has an active
// trip; the error carries the existing trip's start location so the caller
// can offer to clear it first. Publishes a location_update on success.
func (s *Service) Start(ctx context.Context, info domain.DriverInfo, start domain.Checkpoint) (domain.Trip, error) {
	if info.DriverID == "" {
		return domain.Trip{}, fmt.Errorf("%w: driver id is required", domain.ErrValidation)
	}
	if start.Name == "" {
		return domain.Trip{}, fmt.Errorf("%w: start checkpoint name is required", domain.ErrValidation)
	}

	start.Kind = domain.CheckpointStart
	trip := domain.Trip{
		ID:              uuid.New(),
		DriverID:        info.DriverID,
		DriverName:      info.DriverName,
		JeepneyNumber:   info.JeepneyNumber,
		Route:           info.Route,
		StartCheckpoint: start,
		Waypoints:       []domain.Checkpoint{},
		Status:          domain.TripInProgress,
		StartTime:       s.now().UTC(),
	}

	if err := s.store.PutActive(ctx, trip); err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.Start: %w", err)
	}

	s.log.Info("trip started",
		"trip_id", trip.ID,
		"driver_id", trip.DriverID,
		"checkpoint", start.Name,
	)
	s.publishLocation(trip, "")
	return trip, nil
}

// AddCheckpoint appends a waypoint scan to the driver's active trip.
// Scans are kept in arrival order; duplicates are permitted.
// Returns domain.ErrNoActiveTrip if the driver has no trip in progress.
func (s *Service) AddCheckpoint(ctx context.Context, driverID string, cp domain.Checkpoint) (domain.Trip, error) {
	trip, err := s.store.Active(ctx, driverID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.AddCheckpoint: %w", err)
	}

	previous := trip.CurrentLocation()
	cp.Kind = domain.CheckpointWaypoint
	trip.Waypoints = append(trip.Waypoints, cp)

	if err := s.store.UpdateActive(ctx, trip); err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.AddCheckpoint: %w", err)
	}

	s.log.Info("checkpoint added",
		"trip_id", trip.ID,
		"driver_id", driverID,
		"checkpoint", cp.Name,
		"waypoint_count", len(trip.Waypoints),
	)
	s.publishLocation(trip, previous)
	return trip, nil
}

// End completes the driver's active trip at the given end checkpoint.
// Duration is the wall-clock difference rounded to whole minutes; distance
// is the great-circle distance between start and end coordinates. If the
// reported fare is positive the ledger is credited before the final
// location_update is published.
// Returns domain.ErrNoActiveTrip if the driver has no trip in progress.
func (s *Service) End(ctx context.Context, driverID string, end domain.Checkpoint, closeout domain.TripClose) (domain.Trip, error) {
	trip, err := s.store.Active(ctx, driverID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.End: %w", err)
	}

	previous := trip.CurrentLocation()
	endTime := s.now().UTC()
	duration := geo.DurationMinutes(trip.StartTime, endTime)
	distance := geo.DistanceKm(trip.StartCheckpoint.Coordinates, end.Coordinates)

	end.Kind = domain.CheckpointEnd
	trip.EndCheckpoint = &end
	trip.Status = domain.TripCompleted
	trip.EndTime = &endTime
	trip.DurationMinutes = &duration
	trip.DistanceKm = &distance
	trip.Passengers = closeout.Passengers
	trip.FareCollected = closeout.FareCollected

	if err := s.store.Archive(ctx, trip); err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.End: %w", err)
	}

	if closeout.FareCollected != nil && *closeout.FareCollected > 0 {
		if _, err := s.ledger.CreditTrip(ctx, driverID, *closeout.FareCollected, trip.ID, nil); err != nil {
			// The trip is already archived; losing the credit would be
			// worse than reporting it, so the error surfaces to the caller.
			return domain.Trip{}, fmt.Errorf("trip.Service.End: credit: %w", err)
		}
	}

	s.log.Info("trip completed",
		"trip_id", trip.ID,
		"driver_id", driverID,
		"duration_minutes", duration,
		"distance_km", distance,
	)
	s.publishLocation(trip, previous)
	return trip, nil
}

// Cancel marks the driver's active trip cancelled with the given reason and
// moves it to history. No earnings effect, no location event: the driver's
// last reported location is unchanged by a cancellation.
// Returns domain.ErrNoActiveTrip if the driver has no trip in progress.
func (s *Service) Cancel(ctx context.Context, driverID, reason string) (domain.Trip, error) {
	trip, err := s.store.Active(ctx, driverID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.Cancel: %w", err)
	}

	endTime := s.now().UTC()
	trip.Status = domain.TripCancelled
	trip.CancelReason = reason
	trip.EndTime = &endTime

	if err := s.store.Archive(ctx, trip); err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.Cancel: %w", err)
	}

	s.log.Info("trip cancelled", "trip_id", trip.ID, "driver_id", driverID, "reason", reason)
	return trip, nil
}

// ClearActive discards the driver's active trip, if any, without recording
// it in history. Idempotent: clearing with no active trip succeeds as a
// no-op. Used to force a driver back to Idle, e.g. at end of shift.
func (s *Service) ClearActive(ctx context.Context, driverID string) error {
	if err := s.store.ClearActive(ctx, driverID); err != nil {
		return fmt.Errorf("trip.Service.ClearActive: %w", err)
	}
	s.log.Info("active trip cleared", "driver_id", driverID)
	return nil
}

// Active returns the driver's in-progress trip, or domain.ErrNoActiveTrip.
func (s *Service) Active(ctx context.Context, driverID string) (domain.Trip, error) {
	trip, err := s.store.Active(ctx, driverID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("trip.Service.Active: %w", err)
	}
	return trip, nil
}

// History returns the driver's completed and cancelled trips in completion
// order. Always returns a non-nil slice.
func (s *Service) History(ctx context.Context, driverID string) ([]domain.Trip, error) {
	trips, err := s.store.History(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("trip.Service.History: %w", err)
	}
	if trips == nil {
		trips = []domain.Trip{}
	}
	return trips, nil
}

// publishLocation emits a location_update for the trip's current position.
func (s *Service) publishLocation(trip domain.Trip, previous string) {
	coords := trip.StartCheckpoint.Coordinates
	if trip.EndCheckpoint != nil {
		coords = trip.EndCheckpoint.Coordinates
	} else if n := len(trip.Waypoints); n > 0 {
		coords = trip.Waypoints[n-1].Coordinates
	}

	s.dispatcher.Publish(domain.NewLocationEvent(domain.LocationPayload{
		DriverID:         trip.DriverID,
		DriverName:       trip.DriverName,
		JeepneyNumber:    trip.JeepneyNumber,
		Route:            trip.Route,
		CurrentLocation:  trip.CurrentLocation(),
		PreviousLocation: previous,
		Coordinates:      &coords,
	}))
}
