package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/handler"
)

// ---- mock services ---------------------------------------------------------

// mockTripServicer is a test double for handler.TripServicer.
// Set only the method fields your test needs.
type mockTripServicer struct {
	start         func(ctx context.Context, info domain.DriverInfo, start domain.Checkpoint) (domain.Trip, error)
	addCheckpoint func(ctx context.Context, driverID string, cp domain.Checkpoint) (domain.Trip, error)
	end           func(ctx context.Context, driverID string, end domain.Checkpoint, closeout domain.TripClose) (domain.Trip, error)
	cancel        func(ctx context.Context, driverID, reason string) (domain.Trip, error)
	clearActive   func(ctx context.Context, driverID string) error
	active        func(ctx context.Context, driverID string) (domain.Trip, error)
	history       func(ctx context.Context, driverID string) ([]domain.Trip, error)
}

func (m *mockTripServicer) Start(ctx context.Context, info domain.DriverInfo, start domain.Checkpoint) (domain.Trip, error) {
	return m.start(ctx, info, start)
}
func (m *mockTripServicer) AddCheckpoint(ctx context.Context, driverID string, cp domain.Checkpoint) (domain.Trip, error) {
	return m.addCheckpoint(ctx, driverID, cp)
}
func (m *mockTripServicer) End(ctx context.Context, driverID string, end domain.Checkpoint, closeout domain.TripClose) (domain.Trip, error) {
	return m.end(ctx, driverID, end, closeout)
}
func (m *mockTripServicer) Cancel(ctx context.Context, driverID, reason string) (domain.Trip, error) {
	return m.cancel(ctx, driverID, reason)
}
func (m *mockTripServicer) ClearActive(ctx context.Context, driverID string) error {
	return m.clearActive(ctx, driverID)
}
func (m *mockTripServicer) Active(ctx context.Context, driverID string) (domain.Trip, error) {
	return m.active(ctx, driverID)
}
func (m *mockTripServicer) History(ctx context.Context, driverID string) ([]domain.Trip, error) {
	return m.history(ctx, driverID)
}

// compile-time check: mockTripServicer must satisfy handler.TripServicer.
var _ handler.TripServicer = (*mockTripServicer)(nil)

// ---- helpers ---------------------------------------------------------------

// newRouter wires a Server with the given mock onto a chi router, mirroring
// how main.go wires it in production.
func newRouter(trips handler.TripServicer) http.Handler {
	r := chi.NewRouter()
	r.Group(handler.NewServer(trips, nil, nil).Routes)
	return r
}

func tripFixture(driverID string) domain.Trip {
	return domain.Trip{
		ID:            uuid.New(),
		DriverID:      driverID,
		DriverName:    "Mang Ben",
		JeepneyNumber: "JPN-042",
		Route:         "R1",
		StartCheckpoint: domain.Checkpoint{
			ID:   "cp-a",
			Name: "Plaza",
			Kind: domain.CheckpointStart,
		},
		Waypoints: []domain.Checkpoint{},
		Status:    domain.TripInProgress,
		StartTime: time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC),
	}
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// ---- StartTrip -------------------------------------------------------------

func TestStartTrip_OK(t *testing.T) {
	stored := tripFixture("D1")
	h := newRouter(&mockTripServicer{
		start: func(_ context.Context, info domain.DriverInfo, start domain.Checkpoint) (domain.Trip, error) {
			assert.Equal(t, "D1", info.DriverID)
			assert.Equal(t, "Plaza", start.Name)
			return stored, nil
		},
	})

	payload := map[string]any{
		"driver_name":    "Mang Ben",
		"jeepney_number": "JPN-042",
		"route":          "R1",
		"checkpoint": map[string]any{
			"id":          "cp-a",
			"name":        "Plaza",
			"coordinates": map[string]float64{"lat": 14.60, "lng": 120.98},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/drivers/D1/trip/start", jsonBody(t, payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	require.NotNil(t, body["trip"])
}

func TestStartTrip_Conflict(t *testing.T) {
	h := newRouter(&mockTripServicer{
		start: func(context.Context, domain.DriverInfo, domain.Checkpoint) (domain.Trip, error) {
			return domain.Trip{}, &domain.TripConflictError{
				DriverID:      "D1",
				StartLocation: "Plaza",
				StartedAt:     time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC),
			}
		},
	})

	payload := map[string]any{"checkpoint": map[string]any{"name": "Market"}}
	req := httptest.NewRequest(http.MethodPost, "/drivers/D1/trip/start", jsonBody(t, payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "trip_conflict", body["error"])
	assert.Contains(t, body["message"], "Plaza", "conflict response carries the existing start location")
}

func TestStartTrip_MalformedBody(t *testing.T) {
	h := newRouter(&mockTripServicer{})

	req := httptest.NewRequest(http.MethodPost, "/drivers/D1/trip/start", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// ---- EndTrip ---------------------------------------------------------------

func TestEndTrip_PassesFareThrough(t *testing.T) {
	done := tripFixture("D1")
	done.Status = domain.TripCompleted

	var gotFare *float64
	h := newRouter(&mockTripServicer{
		end: func(_ context.Context, _ string, _ domain.Checkpoint, closeout domain.TripClose) (domain.Trip, error) {
			gotFare = closeout.FareCollected
			return done, nil
		},
	})

	payload := map[string]any{
		"checkpoint":     map[string]any{"name": "Terminal"},
		"fare_collected": 50.0,
	}
	req := httptest.NewRequest(http.MethodPost, "/drivers/D1/trip/end", jsonBody(t, payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotFare)
	assert.Equal(t, 50.0, *gotFare)
}

func TestEndTrip_NoActiveTrip(t *testing.T) {
	h := newRouter(&mockTripServicer{
		end: func(context.Context, string, domain.Checkpoint, domain.TripClose) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNoActiveTrip
		},
	})

	payload := map[string]any{"checkpoint": map[string]any{"name": "Terminal"}}
	req := httptest.NewRequest(http.MethodPost, "/drivers/D1/trip/end", jsonBody(t, payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "no_active_trip", body["error"])
}

// ---- ClearTrip -------------------------------------------------------------

func TestClearTrip_OK(t *testing.T) {
	var cleared string
	h := newRouter(&mockTripServicer{
		clearActive: func(_ context.Context, driverID string) error {
			cleared = driverID
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/drivers/D7/trip/clear", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "D7", cleared)
}

// ---- ActiveTrip / TripHistory ----------------------------------------------

func TestActiveTrip_NotFound(t *testing.T) {
	h := newRouter(&mockTripServicer{
		active: func(context.Context, string) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNoActiveTrip
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/drivers/D1/trip", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTripHistory_OK(t *testing.T) {
	h := newRouter(&mockTripServicer{
		history: func(context.Context, string) ([]domain.Trip, error) {
			done := tripFixture("D1")
			done.Status = domain.TripCompleted
			return []domain.Trip{done}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/drivers/D1/trips", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Trips []domain.Trip `json:"trips"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Trips, 1)
	assert.Equal(t, domain.TripCompleted, body.Trips[0].Status)
}

// ---- scan debounce ---------------------------------------------------------

// A second scan arriving while the first is still being processed is dropped
// with 429; scans for a different driver pass through.
func TestStartTrip_ConcurrentScanIsDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var blockOnce sync.Once
	h := newRouter(&mockTripServicer{
		start: func(_ context.Context, info domain.DriverInfo, _ domain.Checkpoint) (domain.Trip, error) {
			if info.DriverID == "D1" {
				blockOnce.Do(func() {
					close(entered)
					<-release
				})
			}
			return tripFixture(info.DriverID), nil
		},
	})

	startReq := func(driverID string) *http.Request {
		payload := map[string]any{"checkpoint": map[string]any{"name": "Plaza"}}
		return httptest.NewRequest(http.MethodPost, "/drivers/"+driverID+"/trip/start", jsonBody(t, payload))
	}

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, startReq("D1"))
		firstDone <- rec
	}()
	<-entered

	// Same driver: dropped while the first scan holds the token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, startReq("D1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "scan_in_progress", body["error"])

	// Different driver: unaffected.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, startReq("D2"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	close(release)
	first := <-firstDone
	assert.Equal(t, http.StatusCreated, first.Code)

	// Token released: the same driver can scan again.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, startReq("D1"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}
