package handler

import (
	"net/http"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// Events handles GET /events. An optional ?kind= query filters by event
// kind; an unknown kind returns an empty list rather than an error.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	var events []domain.NotificationEvent
	if kind := r.URL.Query().Get("kind"); kind != "" {
		events = s.events.EventsOfKind(domain.EventKind(kind))
	} else {
		events = s.events.RecentEvents()
	}
	if events == nil {
		events = []domain.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ClearEvents handles DELETE /events.
func (s *Server) ClearEvents(w http.ResponseWriter, r *http.Request) {
	s.events.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}
