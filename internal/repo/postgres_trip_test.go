package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/repo"
	"github.com/markromolecule/lakbai-core/testutil"
)

// newTestTripStore returns a PGTripStore backed by a transaction that is
// rolled back when the test finishes, giving free per-test isolation.
//
// Skips automatically when TEST_DATABASE_URL is not set.
func newTestTripStore(t *testing.T) *repo.PGTripStore {
	t.Helper()
	tx := beginTestTx(t)
	return repo.NewPGTripStore(tx)
}

func beginTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

func pgTrip(driverID, startName string) domain.Trip {
	trip := activeTrip(driverID, startName)
	trip.DriverName = "Juan Dela Cruz"
	trip.JeepneyNumber = "JPN-042"
	trip.Route = "R1"
	trip.StartCheckpoint.Coordinates = domain.Coordinates{Lat: 14.5995, Lng: 120.9842}
	return trip
}

func TestPGTripStore_putAndGetActive(t *testing.T) {
	store := newTestTripStore(t)
	ctx := context.Background()
	trip := pgTrip("driver-1", "Plaza")

	require.NoError(t, store.PutActive(ctx, trip))

	got, err := store.Active(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, trip.ID, got.ID)
	assert.Equal(t, "Plaza", got.StartCheckpoint.Name)
	assert.Equal(t, trip.StartCheckpoint.Coordinates, got.StartCheckpoint.Coordinates)
	assert.True(t, got.StartTime.Equal(trip.StartTime), "StartTime mismatch")
	assert.Empty(t, got.Waypoints)
	assert.Nil(t, got.EndCheckpoint)
	assert.Nil(t, got.EndTime)
}

func TestPGTripStore_activeUnknownDriver(t *testing.T) {
	store := newTestTripStore(t)

	_, err := store.Active(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrNoActiveTrip)
}

// A unique violation aborts an open transaction, so this test runs against
// the pool directly and deletes its own rows afterwards.
func TestPGTripStore_putActiveConflict(t *testing.T) {
	pool := testutil.NewPool(t)
	store := repo.NewPGTripStore(pool)
	ctx := context.Background()

	driverID := "conflict-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(),
			`DELETE FROM trips WHERE driver_id = $1`, driverID)
	})

	first := pgTrip(driverID, "Plaza")
	require.NoError(t, store.PutActive(ctx, first))

	err := store.PutActive(ctx, pgTrip(driverID, "Terminal"))

	require.ErrorIs(t, err, domain.ErrTripConflict)
	var conflict *domain.TripConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, driverID, conflict.DriverID)
	assert.Equal(t, "Plaza", conflict.StartLocation)
}

func TestPGTripStore_updateActiveWaypoints(t *testing.T) {
	store := newTestTripStore(t)
	ctx := context.Background()
	trip := pgTrip("driver-1", "Plaza")
	require.NoError(t, store.PutActive(ctx, trip))

	trip.Waypoints = []domain.Checkpoint{
		{ID: "cp-2", Name: "Market", Kind: domain.CheckpointWaypoint},
		{ID: "cp-2", Name: "Market", Kind: domain.CheckpointWaypoint},
	}
	require.NoError(t, store.UpdateActive(ctx, trip))

	got, err := store.Active(ctx, "driver-1")
	require.NoError(t, err)
	require.Len(t, got.Waypoints, 2, "duplicate waypoints are preserved")
	assert.Equal(t, "Market", got.Waypoints[0].Name)
}

func TestPGTripStore_updateActiveWithoutTrip(t *testing.T) {
	store := newTestTripStore(t)

	err := store.UpdateActive(context.Background(), pgTrip("driver-1", "Plaza"))
	require.ErrorIs(t, err, domain.ErrNoActiveTrip)
}

func TestPGTripStore_archiveRoundTrip(t *testing.T) {
	store := newTestTripStore(t)
	ctx := context.Background()
	trip := pgTrip("driver-1", "Plaza")
	require.NoError(t, store.PutActive(ctx, trip))

	end := trip.StartTime.Add(25 * time.Minute)
	duration := 25
	distance := 7.3
	pax := 14
	fare := 180.0
	trip.Status = domain.TripCompleted
	trip.EndCheckpoint = &domain.Checkpoint{
		ID: "cp-9", Name: "Terminal", Kind: domain.CheckpointEnd,
		Coordinates: domain.Coordinates{Lat: 14.6091, Lng: 121.0223},
	}
	trip.EndTime = &end
	trip.DurationMinutes = &duration
	trip.DistanceKm = &distance
	trip.Passengers = &pax
	trip.FareCollected = &fare

	require.NoError(t, store.Archive(ctx, trip))

	_, err := store.Active(ctx, "driver-1")
	require.ErrorIs(t, err, domain.ErrNoActiveTrip)

	history, err := store.History(ctx, "driver-1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	got := history[0]
	assert.Equal(t, domain.TripCompleted, got.Status)
	require.NotNil(t, got.EndCheckpoint)
	assert.Equal(t, "Terminal", got.EndCheckpoint.Name)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(end), "EndTime mismatch")
	require.NotNil(t, got.DurationMinutes)
	assert.Equal(t, 25, *got.DurationMinutes)
	require.NotNil(t, got.DistanceKm)
	assert.InDelta(t, 7.3, *got.DistanceKm, 1e-9)
	require.NotNil(t, got.Passengers)
	assert.Equal(t, 14, *got.Passengers)
	require.NotNil(t, got.FareCollected)
	assert.InDelta(t, 180.0, *got.FareCollected, 1e-9)
}

func TestPGTripStore_archiveCancelled(t *testing.T) {
	store := newTestTripStore(t)
	ctx := context.Background()
	trip := pgTrip("driver-1", "Plaza")
	require.NoError(t, store.PutActive(ctx, trip))

	end := trip.StartTime.Add(5 * time.Minute)
	trip.Status = domain.TripCancelled
	trip.EndTime = &end
	trip.CancelReason = "engine trouble"

	require.NoError(t, store.Archive(ctx, trip))

	history, err := store.History(ctx, "driver-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TripCancelled, history[0].Status)
	assert.Equal(t, "engine trouble", history[0].CancelReason)
	assert.Nil(t, history[0].EndCheckpoint)
}

func TestPGTripStore_archiveWithoutTrip(t *testing.T) {
	store := newTestTripStore(t)

	trip := pgTrip("driver-1", "Plaza")
	trip.Status = domain.TripCompleted
	err := store.Archive(context.Background(), trip)
	require.ErrorIs(t, err, domain.ErrNoActiveTrip)
}

func TestPGTripStore_clearActive(t *testing.T) {
	store := newTestTripStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutActive(ctx, pgTrip("driver-1", "Plaza")))

	require.NoError(t, store.ClearActive(ctx, "driver-1"))

	_, err := store.Active(ctx, "driver-1")
	require.ErrorIs(t, err, domain.ErrNoActiveTrip)

	history, err := store.History(ctx, "driver-1")
	require.NoError(t, err)
	assert.Empty(t, history, "cleared trips leave no history entry")

	require.NoError(t, store.ClearActive(ctx, "driver-1"), "clearing twice is fine")
}

func TestPGTripStore_historyCompletionOrder(t *testing.T) {
	store := newTestTripStore(t)
	ctx := context.Background()

	for _, name := range []string{"Plaza", "Market", "Terminal"} {
		trip := pgTrip("driver-1", name)
		require.NoError(t, store.PutActive(ctx, trip))
		trip.Status = domain.TripCompleted
		require.NoError(t, store.Archive(ctx, trip))
	}

	history, err := store.History(ctx, "driver-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Plaza", history[0].StartCheckpoint.Name)
	assert.Equal(t, "Market", history[1].StartCheckpoint.Name)
	assert.Equal(t, "Terminal", history[2].StartCheckpoint.Name)
}
