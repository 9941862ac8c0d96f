// Package detector implements the passenger-side location change detector:
// a polling loop that periodically fetches every driver's last-known
// checkpoint on a route from the backend, diffs it against the previous
// snapshot, and republishes any change as a location_update event. It
// compensates for the absence of a push channel (the backend can only be
// polled) and never mutates trip or earnings state.
package detector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/notify"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 5 * time.Second

// LocationFetcher retrieves the current snapshot of all drivers on a route.
// Implemented by the backend client.
type LocationFetcher interface {
	RouteDriverLocations(ctx context.Context, routeID string) ([]domain.DriverLocationSnapshot, error)
}

// Detector polls the backend and synthesizes location_update events for any
// driver whose last-scanned checkpoint or update timestamp changed between
// two polls. The first observation of a driver never fires: there is
// nothing to diff against.
type Detector struct {
	fetcher    LocationFetcher
	dispatcher *notify.Dispatcher
	interval   time.Duration
	log        *slog.Logger

	polling atomic.Bool // one in-flight fetch at a time

	mu       sync.Mutex
	previous map[string]domain.DriverLocationSnapshot
	cancel   context.CancelFunc
	stopped  bool
	done     chan struct{}
}

// New constructs a Detector. interval <= 0 selects DefaultInterval.
func New(fetcher LocationFetcher, dispatcher *notify.Dispatcher, interval time.Duration, log *slog.Logger) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		interval:   interval,
		log:        log,
		previous:   make(map[string]domain.DriverLocationSnapshot),
	}
}

// Start begins polling the given route. Calling Start on a running detector
// is a no-op. The loop survives fetch failures: errors are logged and the
// next tick proceeds normally.
func (d *Detector) Start(routeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.stopped = false
	d.done = make(chan struct{})

	go d.run(ctx, routeID, d.done)
	d.log.Info("location detector started", "route_id", routeID, "interval", d.interval)
}

// Stop halts polling. After Stop returns no further events are published;
// an in-flight fetch at stop time has its result discarded, not applied.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.stopped = true
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.log.Info("location detector stopped")
}

// RefreshNow performs a single poll immediately, outside the timer loop.
// Skipped if another poll is already in flight.
func (d *Detector) RefreshNow(ctx context.Context, routeID string) {
	d.poll(ctx, routeID)
}

func (d *Detector) run(ctx context.Context, routeID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx, routeID)
		}
	}
}

// poll fetches one snapshot and applies the diff. A tick that arrives while
// the previous fetch is still in flight is skipped, not queued, so a slow
// network never piles up concurrent fetches.
func (d *Detector) poll(ctx context.Context, routeID string) {
	if !d.polling.CompareAndSwap(false, true) {
		return
	}
	defer d.polling.Store(false)

	snapshots, err := d.fetcher.RouteDriverLocations(ctx, routeID)
	if err != nil {
		// Swallowed at the tick level; the loop continues on schedule.
		d.log.Warn("location poll failed", "route_id", routeID, "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	d.apply(snapshots)
}

// apply diffs the fetched snapshots against the cache, publishes an event
// for every changed driver with a baseline, and replaces the cache entry
// for every driver seen whether or not a change fired.
func (d *Detector) apply(snapshots []domain.DriverLocationSnapshot) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	var events []domain.NotificationEvent
	for _, current := range snapshots {
		prev, seen := d.previous[current.DriverID]
		d.previous[current.DriverID] = current
		if !seen {
			continue
		}
		if prev.LastScannedCheckpoint == current.LastScannedCheckpoint &&
			prev.LastUpdate.Equal(current.LastUpdate) {
			continue
		}
		events = append(events, domain.NewLocationEvent(domain.LocationPayload{
			DriverID:         current.DriverID,
			DriverName:       current.DriverName,
			JeepneyNumber:    current.JeepneyNumber,
			Route:            current.Route,
			CurrentLocation:  current.LastScannedCheckpoint,
			PreviousLocation: prev.LastScannedCheckpoint,
		}))
	}
	d.mu.Unlock()

	for _, e := range events {
		d.dispatcher.Publish(e)
	}
}
