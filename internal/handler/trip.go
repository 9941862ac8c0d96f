package handler

import (
	"net/http"
	"time"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// checkpointRequest is the JSON shape of a scanned checkpoint as the UI
// layer hands it over, already canonicalized by the backend.
type checkpointRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Coordinates domain.Coordinates `json:"coordinates"`
	ScannedAt   *time.Time         `json:"scanned_at,omitempty"`
}

func (c checkpointRequest) toCheckpoint() domain.Checkpoint {
	scannedAt := time.Now().UTC()
	if c.ScannedAt != nil {
		scannedAt = *c.ScannedAt
	}
	return domain.Checkpoint{
		ID:          c.ID,
		Name:        c.Name,
		Coordinates: c.Coordinates,
		ScannedAt:   scannedAt,
	}
}

// debounceScan takes the driver's scan token, writing a 429 when a previous
// scan is still in flight. Callers that get true must Release the token when
// the whole pipeline has resolved.
func (s *Server) debounceScan(w http.ResponseWriter, driverID string) bool {
	if !s.scans.TryAcquire(driverID) {
		writeJSON(w, http.StatusTooManyRequests, tripResponse{
			Success: false, Error: "scan_in_progress",
			Message: "a previous scan is still being processed",
		})
		return false
	}
	return true
}

// StartTrip handles POST /drivers/{driverID}/trip/start.
func (s *Server) StartTrip(w http.ResponseWriter, r *http.Request) {
	id := driverID(r)
	if !s.debounceScan(w, id) {
		return
	}
	defer s.scans.Release(id)

	var body struct {
		DriverName    string            `json:"driver_name"`
		JeepneyNumber string            `json:"jeepney_number"`
		Route         string            `json:"route"`
		Checkpoint    checkpointRequest `json:"checkpoint"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, tripResponse{
			Success: false, Error: "validation_error", Message: "invalid request body",
		})
		return
	}

	info := domain.DriverInfo{
		DriverID:      id,
		DriverName:    body.DriverName,
		JeepneyNumber: body.JeepneyNumber,
		Route:         body.Route,
	}
	trip, err := s.trips.Start(r.Context(), info, body.Checkpoint.toCheckpoint())
	if err != nil {
		writeError(w, err)
		return
	}
	writeTrip(w, http.StatusCreated, "trip started at "+trip.StartCheckpoint.Name, trip)
}

// AddCheckpoint handles POST /drivers/{driverID}/trip/checkpoints.
func (s *Server) AddCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := driverID(r)
	if !s.debounceScan(w, id) {
		return
	}
	defer s.scans.Release(id)

	var body struct {
		Checkpoint checkpointRequest `json:"checkpoint"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, tripResponse{
			Success: false, Error: "validation_error", Message: "invalid request body",
		})
		return
	}

	trip, err := s.trips.AddCheckpoint(r.Context(), id, body.Checkpoint.toCheckpoint())
	if err != nil {
		writeError(w, err)
		return
	}
	writeTrip(w, http.StatusOK, "checkpoint recorded", trip)
}

// EndTrip handles POST /drivers/{driverID}/trip/end.
func (s *Server) EndTrip(w http.ResponseWriter, r *http.Request) {
	id := driverID(r)
	if !s.debounceScan(w, id) {
		return
	}
	defer s.scans.Release(id)

	var body struct {
		Checkpoint    checkpointRequest `json:"checkpoint"`
		Passengers    *int              `json:"passengers_picked_up,omitempty"`
		FareCollected *float64          `json:"fare_collected,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, tripResponse{
			Success: false, Error: "validation_error", Message: "invalid request body",
		})
		return
	}

	trip, err := s.trips.End(r.Context(), id, body.Checkpoint.toCheckpoint(), domain.TripClose{
		Passengers:    body.Passengers,
		FareCollected: body.FareCollected,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeTrip(w, http.StatusOK, "trip completed", trip)
}

// CancelTrip handles POST /drivers/{driverID}/trip/cancel.
func (s *Server) CancelTrip(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, tripResponse{
			Success: false, Error: "validation_error", Message: "invalid request body",
		})
		return
	}

	trip, err := s.trips.Cancel(r.Context(), driverID(r), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTrip(w, http.StatusOK, "trip cancelled", trip)
}

// ClearTrip handles POST /drivers/{driverID}/trip/clear.
// Clearing is idempotent: it succeeds whether or not a trip was active.
func (s *Server) ClearTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.trips.ClearActive(r.Context(), driverID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tripResponse{Success: true, Message: "active trip cleared"})
}

// ActiveTrip handles GET /drivers/{driverID}/trip.
func (s *Server) ActiveTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.trips.Active(r.Context(), driverID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeTrip(w, http.StatusOK, "trip in progress", trip)
}

// TripHistory handles GET /drivers/{driverID}/trips.
func (s *Server) TripHistory(w http.ResponseWriter, r *http.Request) {
	trips, err := s.trips.History(r.Context(), driverID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": trips})
}
