package handler

import (
	"net/http"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// earningsResponse wraps an EarningsAccount for the UI layer.
type earningsResponse struct {
	Success  bool                   `json:"success"`
	Earnings domain.EarningsAccount `json:"earnings"`
}

// Earnings handles GET /drivers/{driverID}/earnings.
func (s *Server) Earnings(w http.ResponseWriter, r *http.Request) {
	acc, err := s.earnings.Earnings(r.Context(), driverID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earningsResponse{Success: true, Earnings: acc})
}

// RefreshEarnings handles POST /drivers/{driverID}/earnings/refresh.
// A refresh that observes an increase publishes an earnings_update event;
// the HTTP response itself always just carries the current aggregate.
func (s *Server) RefreshEarnings(w http.ResponseWriter, r *http.Request) {
	acc, err := s.earnings.Refresh(r.Context(), driverID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earningsResponse{Success: true, Earnings: acc})
}

// ResetEarnings handles POST /drivers/{driverID}/earnings/reset.
func (s *Server) ResetEarnings(w http.ResponseWriter, r *http.Request) {
	acc, err := s.earnings.ResetToday(r.Context(), driverID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earningsResponse{Success: true, Earnings: acc})
}
