package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// tripResponse is the envelope returned by every trip operation:
// success/message for the UI banner plus the affected trip when one exists.
type tripResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   string       `json:"error,omitempty"` // machine-readable error kind
	Trip    *domain.Trip `json:"trip,omitempty"`
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

// writeTrip writes a success envelope around trip.
func writeTrip(w http.ResponseWriter, status int, message string, trip domain.Trip) {
	writeJSON(w, status, tripResponse{Success: true, Message: message, Trip: &trip})
}

// writeError maps a service error onto an HTTP status and a failure
// envelope. The error kind lets the UI decide between retry and block:
// a trip conflict is recoverable by offering to clear the active trip
// first, and a missing active trip by prompting to start one.
func writeError(w http.ResponseWriter, err error) {
	var conflict *domain.TripConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, tripResponse{
			Success: false,
			Error:   "trip_conflict",
			Message: conflict.Error(),
		})
	case errors.Is(err, domain.ErrTripConflict):
		writeJSON(w, http.StatusConflict, tripResponse{
			Success: false,
			Error:   "trip_conflict",
			Message: "a trip is already in progress",
		})
	case errors.Is(err, domain.ErrNoActiveTrip):
		writeJSON(w, http.StatusNotFound, tripResponse{
			Success: false,
			Error:   "no_active_trip",
			Message: "no trip in progress for this driver",
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, tripResponse{
			Success: false,
			Error:   "not_found",
			Message: "not found",
		})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, tripResponse{
			Success: false,
			Error:   "validation_error",
			Message: unwrapMessage(err),
		})
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeJSON(w, http.StatusBadGateway, tripResponse{
			Success: false,
			Error:   "backend_unavailable",
			Message: "the transit backend is unreachable, try again",
		})
	default:
		slog.Error("unhandled handler error", "error", err)
		writeJSON(w, http.StatusInternalServerError, tripResponse{
			Success: false,
			Error:   "internal",
			Message: "internal error",
		})
	}
}

// decodeBody decodes the JSON request body into v, rejecting unknown
// fields. Returns a message suitable for a 422 response on failure.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel
// error, e.g. "trip.Service.Start: validation error: driver id is required"
// becomes "driver id is required".
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, "validation error: "); i >= 0 {
		return msg[i+len("validation error: "):]
	}
	return msg
}
