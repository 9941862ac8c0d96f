package repo

import (
	"context"
	"sync"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// MemoryTripStore is the in-memory TripStore used by default. State is
// scoped to process lifetime. Safe for concurrent use; one mutex
// serializes the check-then-insert in PutActive.
type MemoryTripStore struct {
	mu      sync.Mutex
	active  map[string]domain.Trip   // driverID -> active trip
	history map[string][]domain.Trip // driverID -> completion-ordered trips
}

// NewMemoryTripStore constructs an empty in-memory trip store.
func NewMemoryTripStore() *MemoryTripStore {
	return &MemoryTripStore{
		active:  make(map[string]domain.Trip),
		history: make(map[string][]domain.Trip),
	}
}

var _ TripStore = (*MemoryTripStore)(nil)

func (s *MemoryTripStore) PutActive(_ context.Context, trip domain.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[trip.DriverID]; ok {
		return &domain.TripConflictError{
			DriverID:      trip.DriverID,
			StartLocation: existing.StartCheckpoint.Name,
			StartedAt:     existing.StartTime,
		}
	}
	s.active[trip.DriverID] = trip
	return nil
}

func (s *MemoryTripStore) Active(_ context.Context, driverID string) (domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.active[driverID]
	if !ok {
		return domain.Trip{}, domain.ErrNoActiveTrip
	}
	return trip, nil
}

func (s *MemoryTripStore) UpdateActive(_ context.Context, trip domain.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[trip.DriverID]; !ok {
		return domain.ErrNoActiveTrip
	}
	s.active[trip.DriverID] = trip
	return nil
}

func (s *MemoryTripStore) Archive(_ context.Context, trip domain.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[trip.DriverID]; !ok {
		return domain.ErrNoActiveTrip
	}
	delete(s.active, trip.DriverID)
	s.history[trip.DriverID] = append(s.history[trip.DriverID], trip)
	return nil
}

func (s *MemoryTripStore) ClearActive(_ context.Context, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, driverID)
	return nil
}

func (s *MemoryTripStore) History(_ context.Context, driverID string) ([]domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trips := s.history[driverID]
	out := make([]domain.Trip, len(trips))
	copy(out, trips)
	return out, nil
}

// MemoryEarningsStore is the in-memory EarningsStore used by default.
type MemoryEarningsStore struct {
	mu       sync.Mutex
	accounts map[string]domain.EarningsAccount
}

// NewMemoryEarningsStore constructs an empty in-memory earnings store.
func NewMemoryEarningsStore() *MemoryEarningsStore {
	return &MemoryEarningsStore{accounts: make(map[string]domain.EarningsAccount)}
}

var _ EarningsStore = (*MemoryEarningsStore)(nil)

func (s *MemoryEarningsStore) Get(_ context.Context, driverID string) (domain.EarningsAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[driverID]
	if !ok {
		return domain.EarningsAccount{DriverID: driverID}, nil
	}
	return acc, nil
}

func (s *MemoryEarningsStore) Update(_ context.Context, driverID string, fn func(*domain.EarningsAccount) error) (domain.EarningsAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[driverID]
	if !ok {
		acc = domain.EarningsAccount{DriverID: driverID}
	}
	if err := fn(&acc); err != nil {
		return domain.EarningsAccount{}, err
	}
	s.accounts[driverID] = acc
	return acc, nil
}
