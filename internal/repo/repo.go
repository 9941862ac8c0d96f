// Package repo contains the storage layer for trip and earnings state.
// Each store has an interface, an in-memory implementation (the default;
// state is volatile and process-local), and a Postgres
// implementation for deployments that want durability. No business logic
// lives here.
package repo

import (
	"context"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// TripStore defines the persistence operations for the driver trip registry:
// at most one active trip per driver plus an append-only history of
// completed and cancelled trips. The trip service depends on this interface,
// not a concrete implementation, so it can be unit-tested with a mock.
type TripStore interface {
	// PutActive registers trip as its driver's active trip. Returns a
	// *domain.TripConflictError (wrapping domain.ErrTripConflict) if the
	// driver already has one; the check and insert are atomic per driver.
	PutActive(ctx context.Context, trip domain.Trip) error

	// Active returns the driver's in-progress trip.
	// Returns domain.ErrNoActiveTrip if the driver has none.
	Active(ctx context.Context, driverID string) (domain.Trip, error)

	// UpdateActive replaces the driver's active trip record (e.g. after a
	// waypoint append). Returns domain.ErrNoActiveTrip if the driver has
	// no active trip.
	UpdateActive(ctx context.Context, trip domain.Trip) error

	// Archive atomically vacates the driver's active slot and appends the
	// now-terminal trip to the driver's history. Returns
	// domain.ErrNoActiveTrip if the driver has no active trip.
	Archive(ctx context.Context, trip domain.Trip) error

	// ClearActive discards the driver's active trip without recording it
	// in history. Succeeds as a no-op when there is none.
	ClearActive(ctx context.Context, driverID string) error

	// History returns the driver's completed and cancelled trips in
	// completion order. Always non-nil.
	History(ctx context.Context, driverID string) ([]domain.Trip, error)
}

// EarningsStore defines the persistence operations for per-driver earnings
// aggregates. Accounts are created lazily with zeroed values on first use.
type EarningsStore interface {
	// Get returns the driver's account, or a zeroed account if none has
	// been created yet.
	Get(ctx context.Context, driverID string) (domain.EarningsAccount, error)

	// Update applies fn to the driver's account atomically, creating a
	// zeroed account first if necessary, and returns the updated record.
	// If fn returns an error the account is left unchanged.
	Update(ctx context.Context, driverID string, fn func(*domain.EarningsAccount) error) (domain.EarningsAccount, error)
}
