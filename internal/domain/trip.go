// Package domain contains the core data types for the jeepney trip-tracking
// core. This package has no dependencies beyond uuid and is imported by every
// other internal package (repo, trip, ledger, notify, detector, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the lifecycle state of a Trip.
type TripStatus string

const (
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// DriverInfo identifies the driver and vehicle a trip belongs to.
// It is supplied by the caller on trip start and copied onto the Trip.
type DriverInfo struct {
	DriverID      string `json:"driver_id"`
	DriverName    string `json:"driver_name"`
	JeepneyNumber string `json:"jeepney_number"`
	Route         string `json:"route"`
}

// Trip represents a single driver's journey from a start-checkpoint scan to
// an end-checkpoint scan. A trip is the top-level aggregate; checkpoints
// belong to a trip in scan order.
//
// Invariants: an in-progress trip has a nil EndCheckpoint; a completed or
// cancelled trip is immutable and lives only in history. A driver owns at
// most one in-progress trip at any time.
type Trip struct {
	ID              uuid.UUID    `json:"id"`
	DriverID        string       `json:"driver_id"`
	DriverName      string       `json:"driver_name"`
	JeepneyNumber   string       `json:"jeepney_number"`
	Route           string       `json:"route"`
	StartCheckpoint Checkpoint   `json:"start_checkpoint"`
	Waypoints       []Checkpoint `json:"waypoints"`
	EndCheckpoint   *Checkpoint  `json:"end_checkpoint,omitempty"` // nil while in progress
	Status          TripStatus   `json:"status"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	DurationMinutes *int         `json:"duration_minutes,omitempty"`
	DistanceKm      *float64     `json:"distance_km,omitempty"`
	Passengers      *int         `json:"passengers_picked_up,omitempty"`
	FareCollected   *float64     `json:"fare_collected,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
}

// CurrentLocation returns the name of the most recently scanned checkpoint:
// the end checkpoint if the trip has one, otherwise the last waypoint,
// otherwise the start checkpoint.
func (t Trip) CurrentLocation() string {
	if t.EndCheckpoint != nil {
		return t.EndCheckpoint.Name
	}
	if n := len(t.Waypoints); n > 0 {
		return t.Waypoints[n-1].Name
	}
	return t.StartCheckpoint.Name
}

// TripClose carries the optional figures a driver reports when ending a trip.
type TripClose struct {
	Passengers    *int     `json:"passengers_picked_up,omitempty"`
	FareCollected *float64 `json:"fare_collected,omitempty"`
}
