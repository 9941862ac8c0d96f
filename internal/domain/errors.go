package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist. Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing driver ID, non-positive fare).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrNoActiveTrip is returned by trip operations that require an in-progress
// trip when the driver has none. Recoverable: the caller should prompt the
// driver to scan a start checkpoint first.
var ErrNoActiveTrip = errors.New("no active trip")

// ErrTripConflict is the sentinel wrapped by TripConflictError, so callers
// can match with errors.Is without caring about the carried detail.
var ErrTripConflict = errors.New("trip already in progress")

// ErrBackendUnavailable is returned by the backend client when a fetch fails
// after retries. Recoverable: callers retry or surface a retry affordance;
// the detector swallows it at the tick level.
var ErrBackendUnavailable = errors.New("backend unavailable")

// TripConflictError reports that a driver already has an in-progress trip.
// It carries where and when the existing trip started so the caller can
// offer to clear it before retrying.
type TripConflictError struct {
	DriverID      string
	StartLocation string
	StartedAt     time.Time
}

func (e *TripConflictError) Error() string {
	return fmt.Sprintf("driver %s already has a trip in progress since %s at %q",
		e.DriverID, e.StartedAt.Format(time.RFC3339), e.StartLocation)
}

// Unwrap makes errors.Is(err, ErrTripConflict) work on wrapped instances.
func (e *TripConflictError) Unwrap() error { return ErrTripConflict }
