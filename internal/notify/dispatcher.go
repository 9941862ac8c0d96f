// Package notify implements the in-process notification dispatcher: a
// publish/subscribe hub that fans every event out to registered callbacks
// and, for the event kinds a process's declared role should hear about,
// additionally requests a device-level system notification.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// HistoryCapacity is the maximum number of events retained for
// introspection. The oldest entry is evicted when the buffer is full.
const HistoryCapacity = 50

// SystemNotifier delivers a device-level notification (e.g. an OS
// notification banner). Delivery is best-effort; an error triggers the
// dispatcher's alert fallback and is never retried.
type SystemNotifier interface {
	Notify(title, body string) error
}

// Alerter is the synchronous fallback shown when device-level delivery
// fails, so the information is never lost silently.
type Alerter interface {
	Alert(title, body string)
}

// Subscription is the handle returned by Subscribe. Cancel removes the
// callback; cancelling twice is a no-op.
type Subscription struct {
	id int
	d  *Dispatcher
}

// Cancel unregisters the subscription's callback.
func (s *Subscription) Cancel() {
	if s.d == nil {
		return
	}
	s.d.mu.Lock()
	delete(s.d.subscribers, s.id)
	s.d.mu.Unlock()
	s.d = nil
}

// Dispatcher is the single fan-out point shared by the trip state machine,
// the earnings ledger, and the location change detector. One instance per
// composition root; the process role is declared once at construction.
type Dispatcher struct {
	role     domain.Role
	notifier SystemNotifier
	alerter  Alerter
	log      *slog.Logger

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(domain.NotificationEvent)
	history     []domain.NotificationEvent
}

// NewDispatcher constructs a Dispatcher for a process with the given role.
// notifier and alerter may be nil, in which case device-level delivery is
// skipped entirely.
func NewDispatcher(role domain.Role, notifier SystemNotifier, alerter Alerter, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		role:        role,
		notifier:    notifier,
		alerter:     alerter,
		log:         log,
		subscribers: make(map[int]func(domain.NotificationEvent)),
	}
}

// Role returns the process role the dispatcher was constructed with.
func (d *Dispatcher) Role() domain.Role { return d.role }

// Subscribe registers a callback invoked on every published event,
// regardless of the process role. The returned Subscription cancels it.
func (d *Dispatcher) Subscribe(fn func(domain.NotificationEvent)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subscribers[d.nextID] = fn
	return &Subscription{id: d.nextID, d: d}
}

// Publish appends the event to the bounded history, fans it out to every
// registered callback, and then requests a device-level notification if the
// process role matches the event's audience.
//
// One callback's panic never blocks delivery to the rest; it is recovered
// and logged. Device-level delivery failure falls back to a synchronous
// alert and never propagates to the publisher.
func (d *Dispatcher) Publish(event domain.NotificationEvent) {
	d.mu.Lock()
	d.history = append(d.history, event)
	if len(d.history) > HistoryCapacity {
		d.history = d.history[len(d.history)-HistoryCapacity:]
	}
	callbacks := make([]func(domain.NotificationEvent), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		callbacks = append(callbacks, fn)
	}
	d.mu.Unlock()

	for _, fn := range callbacks {
		d.invoke(fn, event)
	}

	if d.role == event.Audience() {
		d.deliverToDevice(event)
	}
}

// invoke runs a single subscriber callback, isolating its failure.
func (d *Dispatcher) invoke(fn func(domain.NotificationEvent), event domain.NotificationEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification subscriber panicked",
				"event_id", event.ID,
				"kind", event.Kind,
				"panic", r,
			)
		}
	}()
	fn(event)
}

// deliverToDevice requests a system notification, falling back to the
// synchronous alerter on failure. No retry.
func (d *Dispatcher) deliverToDevice(event domain.NotificationEvent) {
	if d.notifier == nil {
		return
	}
	title, body := renderEvent(event)
	if err := d.notifier.Notify(title, body); err != nil {
		d.log.Warn("device notification failed, falling back to alert",
			"event_id", event.ID,
			"kind", event.Kind,
			"error", err,
		)
		if d.alerter != nil {
			d.alerter.Alert(title, body)
		}
	}
}

// RecentEvents returns a copy of the retained history, oldest first.
func (d *Dispatcher) RecentEvents() []domain.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.NotificationEvent, len(d.history))
	copy(out, d.history)
	return out
}

// EventsOfKind returns the retained events of the given kind, oldest first.
func (d *Dispatcher) EventsOfKind(kind domain.EventKind) []domain.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.NotificationEvent
	for _, e := range d.history {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ClearHistory discards all retained events.
func (d *Dispatcher) ClearHistory() {
	d.mu.Lock()
	d.history = nil
	d.mu.Unlock()
}

// renderEvent produces the title and body for device-level delivery.
func renderEvent(event domain.NotificationEvent) (title, body string) {
	switch event.Kind {
	case domain.EventEarningsUpdate:
		p := event.Earnings
		return "Earnings updated",
			fmt.Sprintf("₱%.2f received, today's total is ₱%.2f", p.Amount, p.NewTotal)
	case domain.EventLocationUpdate:
		p := event.Location
		if p.PreviousLocation != "" {
			return "Jeepney location update",
				fmt.Sprintf("%s (%s) moved from %s to %s", p.DriverName, p.JeepneyNumber, p.PreviousLocation, p.CurrentLocation)
		}
		return "Jeepney location update",
			fmt.Sprintf("%s (%s) is now at %s", p.DriverName, p.JeepneyNumber, p.CurrentLocation)
	}
	return string(event.Kind), ""
}
