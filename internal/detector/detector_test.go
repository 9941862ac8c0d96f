package detector_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markromolecule/lakbai-core/internal/detector"
	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/notify"
)

// ---- test doubles ----------------------------------------------------------

// scriptedFetcher returns one canned snapshot set per call, in order,
// repeating the last one when the script runs out.
type scriptedFetcher struct {
	mu     sync.Mutex
	script [][]domain.DriverLocationSnapshot
	err    error
	calls  int
}

func (f *scriptedFetcher) RouteDriverLocations(_ context.Context, _ string) ([]domain.DriverLocationSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.script) == 0 {
		return nil, nil
	}
	next := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return next, nil
}

var _ detector.LocationFetcher = (*scriptedFetcher)(nil)

// ---- helpers ---------------------------------------------------------------

// eventLog is a concurrency-safe subscriber sink. The detector's timer loop
// publishes from its own goroutine, so tests must not append to a bare slice.
type eventLog struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
}

func (l *eventLog) add(e domain.NotificationEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []domain.NotificationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.NotificationEvent, len(l.events))
	copy(out, l.events)
	return out
}

func newDetector(t *testing.T, f detector.LocationFetcher) (*detector.Detector, *eventLog) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := notify.NewDispatcher(domain.RolePassenger, nil, nil, log)

	sink := &eventLog{}
	d.Subscribe(sink.add)

	return detector.New(f, d, 10*time.Millisecond, log), sink
}

func snap(driverID, checkpoint string, at time.Time) domain.DriverLocationSnapshot {
	return domain.DriverLocationSnapshot{
		DriverID:              driverID,
		DriverName:            "Mang Ben",
		JeepneyNumber:         "JPN-042",
		Route:                 "R1",
		LastScannedCheckpoint: checkpoint,
		LastUpdate:            at,
		ShiftStatus:           "on_shift",
		ActivityStatus:        "active",
	}
}

// ---- diffing ---------------------------------------------------------------

// The first observation of a driver never fires: there is no baseline to
// diff against.
func TestDetector_firstObservationNeverFires(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D2", "X", t1)},
	}}
	det, sink := newDetector(t, f)

	det.RefreshNow(context.Background(), "R1")

	assert.Empty(t, sink.all())
}

// Scenario: D2 at X at t1 (cached, no event), still X at t2 (no event),
// then Y at t3 (one event with previous and current locations).
func TestDetector_publishesOnLocationChangeWithBaseline(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D2", "X", t1)},
		{snap("D2", "X", t1)},
		{snap("D2", "Y", t1.Add(2*time.Minute))},
	}}
	det, sink := newDetector(t, f)
	ctx := context.Background()

	det.RefreshNow(ctx, "R1")
	det.RefreshNow(ctx, "R1")
	require.Empty(t, sink.all(), "unchanged snapshot must not fire")

	det.RefreshNow(ctx, "R1")

	events := sink.all()
	require.Len(t, events, 1)
	loc := events[0].Location
	require.NotNil(t, loc)
	assert.Equal(t, "D2", loc.DriverID)
	assert.Equal(t, "X", loc.PreviousLocation)
	assert.Equal(t, "Y", loc.CurrentLocation)
}

// A bumped update timestamp alone is a change, even at the same checkpoint:
// the backend stored a fresh scan.
func TestDetector_timestampOnlyChangeFires(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D2", "X", t1)},
		{snap("D2", "X", t1.Add(time.Minute))},
	}}
	det, sink := newDetector(t, f)
	ctx := context.Background()

	det.RefreshNow(ctx, "R1")
	det.RefreshNow(ctx, "R1")

	require.Len(t, sink.all(), 1)
}

// A driver that appears mid-stream gets a baseline on their first poll
// while already-known drivers keep diffing normally.
func TestDetector_newDriverMidStream(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D1", "A", t1)},
		{snap("D1", "B", t1.Add(time.Minute)), snap("D3", "A", t1)},
	}}
	det, sink := newDetector(t, f)
	ctx := context.Background()

	det.RefreshNow(ctx, "R1")
	det.RefreshNow(ctx, "R1")

	events := sink.all()
	require.Len(t, events, 1, "only the known driver fires")
	assert.Equal(t, "D1", events[0].Location.DriverID)
}

// ---- failure handling ------------------------------------------------------

// Fetch failures are swallowed at the tick level; the next successful poll
// proceeds with an intact cache.
func TestDetector_fetchErrorIsSwallowed(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D2", "X", t1)},
	}}
	det, sink := newDetector(t, f)
	ctx := context.Background()

	det.RefreshNow(ctx, "R1")

	f.mu.Lock()
	f.err = errors.New("network down")
	f.mu.Unlock()
	det.RefreshNow(ctx, "R1")
	assert.Empty(t, sink.all())

	f.mu.Lock()
	f.err = nil
	f.script = [][]domain.DriverLocationSnapshot{{snap("D2", "Y", t1.Add(time.Minute))}}
	f.mu.Unlock()
	det.RefreshNow(ctx, "R1")

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "X", events[0].Location.PreviousLocation, "cache survives a failed tick")
}

// ---- lifecycle -------------------------------------------------------------

func TestDetector_startPollsAndStopHalts(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D2", "X", t1)},
	}}
	det, _ := newDetector(t, f)

	det.Start("R1")
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.calls >= 2
	}, time.Second, 5*time.Millisecond, "timer loop should poll repeatedly")

	det.Stop()

	f.mu.Lock()
	after := f.calls
	f.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	f.mu.Lock()
	assert.Equal(t, after, f.calls, "no polls after Stop")
	f.mu.Unlock()
}

// After Stop, no further events are published even if a refresh is invoked.
func TestDetector_noEventsAfterStop(t *testing.T) {
	t1 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	f := &scriptedFetcher{script: [][]domain.DriverLocationSnapshot{
		{snap("D2", "X", t1)},
		{snap("D2", "Y", t1.Add(time.Minute))},
	}}
	det, sink := newDetector(t, f)
	ctx := context.Background()

	det.RefreshNow(ctx, "R1") // baseline cached
	det.Stop()

	det.RefreshNow(ctx, "R1")
	assert.Empty(t, sink.all(), "a post-stop result must be discarded, not applied")
}

func TestDetector_startTwiceIsNoOp(t *testing.T) {
	f := &scriptedFetcher{}
	det, _ := newDetector(t, f)

	det.Start("R1")
	det.Start("R1")
	det.Stop()
}
