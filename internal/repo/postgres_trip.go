package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and
// pgx.Tx. Accepting this interface rather than *pgxpool.Pool directly lets
// integration tests pass a transaction that is rolled back after each test,
// giving free per-test isolation without manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tripColumns = `id, driver_id, driver_name, jeepney_number, route,
		start_checkpoint, waypoints, end_checkpoint, status, start_time,
		end_time, duration_minutes, distance_km, passengers_picked_up,
		fare_collected, cancel_reason`

// PGTripStore is the Postgres implementation of TripStore. A partial unique
// index on (driver_id) WHERE status = 'in_progress' enforces the
// at-most-one-active-trip invariant at the database level, making
// PutActive's check-then-insert atomic without any application locking.
type PGTripStore struct {
	db db
}

// NewPGTripStore constructs a TripStore backed by the provided db
// connection. In production pass *pgxpool.Pool; in tests pass a pgx.Tx.
func NewPGTripStore(db db) *PGTripStore {
	return &PGTripStore{db: db}
}

var _ TripStore = (*PGTripStore)(nil)

func (s *PGTripStore) PutActive(ctx context.Context, trip domain.Trip) error {
	const q = `
		INSERT INTO trips (id, driver_id, driver_name, jeepney_number, route,
			start_checkpoint, waypoints, status, start_time)
		VALUES (@id, @driver_id, @driver_name, @jeepney_number, @route,
			@start_checkpoint, @waypoints, @status, @start_time)`

	startCP, err := json.Marshal(trip.StartCheckpoint)
	if err != nil {
		return fmt.Errorf("repo.PGTripStore.PutActive: marshal start checkpoint: %w", err)
	}
	waypoints, err := marshalWaypoints(trip.Waypoints)
	if err != nil {
		return fmt.Errorf("repo.PGTripStore.PutActive: %w", err)
	}

	_, err = s.db.Exec(ctx, q, pgx.NamedArgs{
		"id":               trip.ID,
		"driver_id":        trip.DriverID,
		"driver_name":      trip.DriverName,
		"jeepney_number":   trip.JeepneyNumber,
		"route":            trip.Route,
		"start_checkpoint": startCP,
		"waypoints":        waypoints,
		"status":           trip.Status,
		"start_time":       trip.StartTime,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return s.conflictError(ctx, trip.DriverID)
		}
		return fmt.Errorf("repo.PGTripStore.PutActive: %w", err)
	}
	return nil
}

// conflictError loads the existing active trip so the conflict carries its
// start location. If the conflicting row vanished in between, fall back to
// the bare sentinel.
func (s *PGTripStore) conflictError(ctx context.Context, driverID string) error {
	existing, err := s.Active(ctx, driverID)
	if err != nil {
		return domain.ErrTripConflict
	}
	return &domain.TripConflictError{
		DriverID:      driverID,
		StartLocation: existing.StartCheckpoint.Name,
		StartedAt:     existing.StartTime,
	}
}

func (s *PGTripStore) Active(ctx context.Context, driverID string) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = @driver_id AND status = 'in_progress'`

	row := s.db.QueryRow(ctx, q, pgx.NamedArgs{"driver_id": driverID})
	trip, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Trip{}, domain.ErrNoActiveTrip
		}
		return domain.Trip{}, fmt.Errorf("repo.PGTripStore.Active: %w", err)
	}
	return trip, nil
}

func (s *PGTripStore) UpdateActive(ctx context.Context, trip domain.Trip) error {
	const q = `
		UPDATE trips
		SET waypoints = @waypoints
		WHERE driver_id = @driver_id AND status = 'in_progress'`

	waypoints, err := marshalWaypoints(trip.Waypoints)
	if err != nil {
		return fmt.Errorf("repo.PGTripStore.UpdateActive: %w", err)
	}

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"driver_id": trip.DriverID,
		"waypoints": waypoints,
	})
	if err != nil {
		return fmt.Errorf("repo.PGTripStore.UpdateActive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoActiveTrip
	}
	return nil
}

// Archive stamps completed_at with clock_timestamp() rather than now() so
// trips archived within a single transaction still get distinct completion
// times, keeping History order stable.
func (s *PGTripStore) Archive(ctx context.Context, trip domain.Trip) error {
	const q = `
		UPDATE trips
		SET waypoints            = @waypoints,
		    end_checkpoint       = @end_checkpoint,
		    status               = @status,
		    end_time             = @end_time,
		    duration_minutes     = @duration_minutes,
		    distance_km          = @distance_km,
		    passengers_picked_up = @passengers,
		    fare_collected       = @fare_collected,
		    cancel_reason        = @cancel_reason,
		    completed_at         = clock_timestamp()
		WHERE driver_id = @driver_id AND status = 'in_progress'`

	waypoints, err := marshalWaypoints(trip.Waypoints)
	if err != nil {
		return fmt.Errorf("repo.PGTripStore.Archive: %w", err)
	}
	var endCP []byte
	if trip.EndCheckpoint != nil {
		if endCP, err = json.Marshal(trip.EndCheckpoint); err != nil {
			return fmt.Errorf("repo.PGTripStore.Archive: marshal end checkpoint: %w", err)
		}
	}

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"driver_id":        trip.DriverID,
		"waypoints":        waypoints,
		"end_checkpoint":   endCP,
		"status":           trip.Status,
		"end_time":         trip.EndTime,
		"duration_minutes": trip.DurationMinutes,
		"distance_km":      trip.DistanceKm,
		"passengers":       trip.Passengers,
		"fare_collected":   trip.FareCollected,
		"cancel_reason":    trip.CancelReason,
	})
	if err != nil {
		return fmt.Errorf("repo.PGTripStore.Archive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoActiveTrip
	}
	return nil
}

func (s *PGTripStore) ClearActive(ctx context.Context, driverID string) error {
	const q = `DELETE FROM trips WHERE driver_id = @driver_id AND status = 'in_progress'`

	if _, err := s.db.Exec(ctx, q, pgx.NamedArgs{"driver_id": driverID}); err != nil {
		return fmt.Errorf("repo.PGTripStore.ClearActive: %w", err)
	}
	return nil
}

func (s *PGTripStore) History(ctx context.Context, driverID string) ([]domain.Trip, error) {
	q := `SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = @driver_id AND status <> 'in_progress'
		ORDER BY completed_at ASC`

	rows, err := s.db.Query(ctx, q, pgx.NamedArgs{"driver_id": driverID})
	if err != nil {
		return nil, fmt.Errorf("repo.PGTripStore.History: %w", err)
	}
	defer rows.Close()

	trips := []domain.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.PGTripStore.History: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.PGTripStore.History: rows: %w", err)
	}

	return trips, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanTrip to be
// reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip, handling the UUID,
// JSONB checkpoint, and nullable column conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t         domain.Trip
		id        pgtype.UUID
		startCP   []byte
		waypoints []byte
		endCP     []byte
		endTime   pgtype.Timestamptz
		duration  pgtype.Int4
		distance  pgtype.Float8
		pax       pgtype.Int4
		fare      pgtype.Float8
	)

	err := s.Scan(&id, &t.DriverID, &t.DriverName, &t.JeepneyNumber, &t.Route,
		&startCP, &waypoints, &endCP, &t.Status, &t.StartTime,
		&endTime, &duration, &distance, &pax, &fare, &t.CancelReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	if err := json.Unmarshal(startCP, &t.StartCheckpoint); err != nil {
		return domain.Trip{}, fmt.Errorf("unmarshal start checkpoint: %w", err)
	}
	if len(waypoints) > 0 {
		if err := json.Unmarshal(waypoints, &t.Waypoints); err != nil {
			return domain.Trip{}, fmt.Errorf("unmarshal waypoints: %w", err)
		}
	}
	if len(endCP) > 0 {
		var cp domain.Checkpoint
		if err := json.Unmarshal(endCP, &cp); err != nil {
			return domain.Trip{}, fmt.Errorf("unmarshal end checkpoint: %w", err)
		}
		t.EndCheckpoint = &cp
	}
	if endTime.Valid {
		et := endTime.Time
		t.EndTime = &et
	}
	if duration.Valid {
		d := int(duration.Int32)
		t.DurationMinutes = &d
	}
	if distance.Valid {
		km := distance.Float64
		t.DistanceKm = &km
	}
	if pax.Valid {
		p := int(pax.Int32)
		t.Passengers = &p
	}
	if fare.Valid {
		f := fare.Float64
		t.FareCollected = &f
	}

	return t, nil
}

// marshalWaypoints encodes the waypoint sequence as JSONB, normalizing nil
// to an empty array so the column is never NULL.
func marshalWaypoints(waypoints []domain.Checkpoint) ([]byte, error) {
	if waypoints == nil {
		waypoints = []domain.Checkpoint{}
	}
	b, err := json.Marshal(waypoints)
	if err != nil {
		return nil, fmt.Errorf("marshal waypoints: %w", err)
	}
	return b, nil
}
