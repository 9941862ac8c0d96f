package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the declared audience role of a running process. It gates which
// event kinds trigger device-level notifications: earnings updates go to
// drivers, location updates to passengers, and admins receive neither.
type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
	RoleAdmin     Role = "admin"
)

// EventKind discriminates the NotificationEvent tagged union.
type EventKind string

const (
	EventEarningsUpdate EventKind = "earnings_update"
	EventLocationUpdate EventKind = "location_update"
)

// EarningsPayload is the body of an earnings_update event, published when a
// driver-initiated refresh observes an increase in the day's total.
type EarningsPayload struct {
	DriverID      string  `json:"driver_id"`
	Amount        float64 `json:"amount"`
	PreviousTotal float64 `json:"previous_total"`
	NewTotal      float64 `json:"new_total"`
}

// LocationPayload is the body of a location_update event, published on every
// location-affecting trip transition and by the location change detector.
type LocationPayload struct {
	DriverID         string       `json:"driver_id"`
	DriverName       string       `json:"driver_name"`
	JeepneyNumber    string       `json:"jeepney_number"`
	Route            string       `json:"route"`
	CurrentLocation  string       `json:"current_location"`
	PreviousLocation string       `json:"previous_location,omitempty"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
}

// NotificationEvent is the tagged union fanned out by the dispatcher.
// Exactly one of Earnings or Location is non-nil, matching Kind.
// Events are immutable once constructed.
type NotificationEvent struct {
	ID        uuid.UUID        `json:"id"`
	Kind      EventKind        `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Earnings  *EarningsPayload `json:"earnings,omitempty"`
	Location  *LocationPayload `json:"location,omitempty"`
}

// NewEarningsEvent constructs an earnings_update event with a fresh ID.
func NewEarningsEvent(p EarningsPayload) NotificationEvent {
	return NotificationEvent{
		ID:        uuid.New(),
		Kind:      EventEarningsUpdate,
		Timestamp: time.Now().UTC(),
		Earnings:  &p,
	}
}

// NewLocationEvent constructs a location_update event with a fresh ID.
func NewLocationEvent(p LocationPayload) NotificationEvent {
	return NotificationEvent{
		ID:        uuid.New(),
		Kind:      EventLocationUpdate,
		Timestamp: time.Now().UTC(),
		Location:  &p,
	}
}

// Audience returns the role that should receive a device-level notification
// for this event kind. Admin processes never receive one.
func (e NotificationEvent) Audience() Role {
	switch e.Kind {
	case EventEarningsUpdate:
		return RoleDriver
	case EventLocationUpdate:
		return RolePassenger
	}
	return ""
}
