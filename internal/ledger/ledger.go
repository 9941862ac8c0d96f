// Package ledger implements the per-driver earnings aggregate: silent
// crediting when a trip completes with revenue, and a driver-initiated
// refresh that publishes an earnings notification only when the day's total
// has increased since the last observed value.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/notify"
	"github.com/markromolecule/lakbai-core/internal/repo"
)

// Service is the earnings ledger. It owns all mutations of
// domain.EarningsAccount; nothing else writes earnings state.
type Service struct {
	store      repo.EarningsStore
	dispatcher *notify.Dispatcher
	log        *slog.Logger
	now        func() time.Time
}

// NewService constructs a ledger backed by the given store, publishing
// refresh notifications through dispatcher.
func NewService(store repo.EarningsStore, dispatcher *notify.Dispatcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, dispatcher: dispatcher, log: log, now: time.Now}
}

// CreditTrip adds amount to all three running totals, bumps the trip
// counters, and recomputes the average fare. Crediting is silent: no
// notification fires here; the driver is notified only when they refresh.
func (s *Service) CreditTrip(ctx context.Context, driverID string, amount float64, tripID uuid.UUID, breakdown map[string]float64) (domain.EarningsAccount, error) {
	if driverID == "" {
		return domain.EarningsAccount{}, fmt.Errorf("%w: driver id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return domain.EarningsAccount{}, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}

	acc, err := s.store.Update(ctx, driverID, func(a *domain.EarningsAccount) error {
		a.TodayTotal += amount
		a.WeeklyTotal += amount
		a.MonthlyTotal += amount
		a.TotalTripCount++
		a.TodayTripCount++
		a.AverageFarePerTrip += (amount - a.AverageFarePerTrip) / float64(a.TotalTripCount)
		a.LastUpdate = s.now().UTC()
		return nil
	})
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("ledger.Service.CreditTrip: %w", err)
	}

	s.log.Info("trip credited",
		"driver_id", driverID,
		"trip_id", tripID,
		"amount", amount,
		"today_total", acc.TodayTotal,
		"breakdown", breakdown,
	)
	return acc, nil
}

// Refresh re-reads the driver's aggregate and, if the day's total is
// strictly greater than the last observed value, publishes an
// earnings_update for the difference before snapshotting the new value.
// Equal totals, decreases (e.g. after ResetToday), and a driver's first
// refresh with nothing earned fire no event.
func (s *Service) Refresh(ctx context.Context, driverID string) (domain.EarningsAccount, error) {
	if driverID == "" {
		return domain.EarningsAccount{}, fmt.Errorf("%w: driver id is required", domain.ErrValidation)
	}

	var previous float64
	acc, err := s.store.Update(ctx, driverID, func(a *domain.EarningsAccount) error {
		previous = a.LastObservedTotal
		a.LastObservedTotal = a.TodayTotal
		return nil
	})
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("ledger.Service.Refresh: %w", err)
	}

	if acc.TodayTotal > previous {
		s.dispatcher.Publish(domain.NewEarningsEvent(domain.EarningsPayload{
			DriverID:      driverID,
			Amount:        acc.TodayTotal - previous,
			PreviousTotal: previous,
			NewTotal:      acc.TodayTotal,
		}))
	}
	return acc, nil
}

// ResetToday zeroes the day's total and trip count, leaving the weekly and
// monthly aggregates and the observation snapshot untouched. The next
// Refresh sees a decrease, which never notifies.
func (s *Service) ResetToday(ctx context.Context, driverID string) (domain.EarningsAccount, error) {
	if driverID == "" {
		return domain.EarningsAccount{}, fmt.Errorf("%w: driver id is required", domain.ErrValidation)
	}

	acc, err := s.store.Update(ctx, driverID, func(a *domain.EarningsAccount) error {
		a.TodayTotal = 0
		a.TodayTripCount = 0
		a.LastUpdate = s.now().UTC()
		return nil
	})
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("ledger.Service.ResetToday: %w", err)
	}
	return acc, nil
}

// Earnings returns the driver's current aggregate, zeroed if the driver has
// never been credited.
func (s *Service) Earnings(ctx context.Context, driverID string) (domain.EarningsAccount, error) {
	acc, err := s.store.Get(ctx, driverID)
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("ledger.Service.Earnings: %w", err)
	}
	return acc, nil
}
