// Package handler implements the HTTP handlers exposing the trip core to
// the UI layers (driver app, passenger app, admin console). All handlers
// are methods on Server; methods are split into domain-specific files
// (trip.go, earnings.go, events.go, health.go) but share the same Server
// struct so they can access its dependencies.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/trip"
)

// TripServicer defines the trip operations the handler depends on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the service layer.
type TripServicer interface {
	Start(ctx context.Context, info domain.DriverInfo, start domain.Checkpoint) (domain.Trip, error)
	AddCheckpoint(ctx context.Context, driverID string, cp domain.Checkpoint) (domain.Trip, error)
	End(ctx context.Context, driverID string, end domain.Checkpoint, closeout domain.TripClose) (domain.Trip, error)
	Cancel(ctx context.Context, driverID, reason string) (domain.Trip, error)
	ClearActive(ctx context.Context, driverID string) error
	Active(ctx context.Context, driverID string) (domain.Trip, error)
	History(ctx context.Context, driverID string) ([]domain.Trip, error)
}

// EarningsServicer defines the ledger operations the handler depends on.
type EarningsServicer interface {
	Earnings(ctx context.Context, driverID string) (domain.EarningsAccount, error)
	Refresh(ctx context.Context, driverID string) (domain.EarningsAccount, error)
	ResetToday(ctx context.Context, driverID string) (domain.EarningsAccount, error)
}

// EventSource defines the dispatcher introspection the handler depends on.
type EventSource interface {
	RecentEvents() []domain.NotificationEvent
	EventsOfKind(kind domain.EventKind) []domain.NotificationEvent
	ClearHistory()
}

// Server holds the handler dependencies. Wire it onto a chi router with
// Routes.
type Server struct {
	trips    TripServicer
	earnings EarningsServicer
	events   EventSource

	// scans debounces the scan-driven trip endpoints per driver: a second
	// scan arriving while one is still being processed is dropped with 429
	// instead of producing a duplicate transition.
	scans *trip.Guard
}

// NewServer constructs the Server with all its dependencies.
func NewServer(trips TripServicer, earnings EarningsServicer, events EventSource) *Server {
	return &Server{trips: trips, earnings: earnings, events: events, scans: trip.NewGuard()}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.Health)

	r.Route("/drivers/{driverID}", func(r chi.Router) {
		r.Route("/trip", func(r chi.Router) {
			r.Get("/", s.ActiveTrip)
			r.Post("/start", s.StartTrip)
			r.Post("/checkpoints", s.AddCheckpoint)
			r.Post("/end", s.EndTrip)
			r.Post("/cancel", s.CancelTrip)
			r.Post("/clear", s.ClearTrip)
		})
		r.Get("/trips", s.TripHistory)

		r.Route("/earnings", func(r chi.Router) {
			r.Get("/", s.Earnings)
			r.Post("/refresh", s.RefreshEarnings)
			r.Post("/reset", s.ResetEarnings)
		})
	})

	r.Get("/events", s.Events)
	r.Delete("/events", s.ClearEvents)
}

// driverID extracts the driverID path parameter.
func driverID(r *http.Request) string {
	return chi.URLParam(r, "driverID")
}
