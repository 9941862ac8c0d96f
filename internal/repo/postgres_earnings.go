package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// txBeginner is the slice of *pgxpool.Pool (or pgx.Tx) the earnings store
// needs: Update runs inside a transaction with a row lock so concurrent
// credits and refreshes for the same driver serialize.
type txBeginner interface {
	db
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGEarningsStore is the Postgres implementation of EarningsStore.
type PGEarningsStore struct {
	db txBeginner
}

// NewPGEarningsStore constructs an EarningsStore backed by the provided
// pool or transaction.
func NewPGEarningsStore(db txBeginner) *PGEarningsStore {
	return &PGEarningsStore{db: db}
}

var _ EarningsStore = (*PGEarningsStore)(nil)

const earningsColumns = `driver_id, today_total, weekly_total, monthly_total,
		total_trip_count, today_trip_count, average_fare_per_trip,
		last_observed_total, last_update`

func (s *PGEarningsStore) Get(ctx context.Context, driverID string) (domain.EarningsAccount, error) {
	q := `SELECT ` + earningsColumns + ` FROM earnings_accounts WHERE driver_id = @driver_id`

	row := s.db.QueryRow(ctx, q, pgx.NamedArgs{"driver_id": driverID})
	acc, err := scanEarnings(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EarningsAccount{DriverID: driverID}, nil
		}
		return domain.EarningsAccount{}, fmt.Errorf("repo.PGEarningsStore.Get: %w", err)
	}
	return acc, nil
}

func (s *PGEarningsStore) Update(ctx context.Context, driverID string, fn func(*domain.EarningsAccount) error) (domain.EarningsAccount, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("repo.PGEarningsStore.Update: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the row exists, then lock it for the read-modify-write.
	const ensure = `
		INSERT INTO earnings_accounts (driver_id)
		VALUES (@driver_id)
		ON CONFLICT (driver_id) DO NOTHING`
	if _, err := tx.Exec(ctx, ensure, pgx.NamedArgs{"driver_id": driverID}); err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("repo.PGEarningsStore.Update: ensure: %w", err)
	}

	lock := `SELECT ` + earningsColumns + ` FROM earnings_accounts WHERE driver_id = @driver_id FOR UPDATE`
	acc, err := scanEarnings(tx.QueryRow(ctx, lock, pgx.NamedArgs{"driver_id": driverID}))
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("repo.PGEarningsStore.Update: lock: %w", err)
	}

	if err := fn(&acc); err != nil {
		return domain.EarningsAccount{}, err
	}

	const save = `
		UPDATE earnings_accounts
		SET today_total           = @today_total,
		    weekly_total          = @weekly_total,
		    monthly_total         = @monthly_total,
		    total_trip_count      = @total_trip_count,
		    today_trip_count      = @today_trip_count,
		    average_fare_per_trip = @average_fare_per_trip,
		    last_observed_total   = @last_observed_total,
		    last_update           = @last_update
		WHERE driver_id = @driver_id`
	_, err = tx.Exec(ctx, save, pgx.NamedArgs{
		"driver_id":             driverID,
		"today_total":           acc.TodayTotal,
		"weekly_total":          acc.WeeklyTotal,
		"monthly_total":         acc.MonthlyTotal,
		"total_trip_count":      acc.TotalTripCount,
		"today_trip_count":      acc.TodayTripCount,
		"average_fare_per_trip": acc.AverageFarePerTrip,
		"last_observed_total":   acc.LastObservedTotal,
		"last_update":           acc.LastUpdate,
	})
	if err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("repo.PGEarningsStore.Update: save: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.EarningsAccount{}, fmt.Errorf("repo.PGEarningsStore.Update: commit: %w", err)
	}
	return acc, nil
}

// scanEarnings maps a single database row into a domain.EarningsAccount.
func scanEarnings(s scanner) (domain.EarningsAccount, error) {
	var acc domain.EarningsAccount
	err := s.Scan(&acc.DriverID, &acc.TodayTotal, &acc.WeeklyTotal, &acc.MonthlyTotal,
		&acc.TotalTripCount, &acc.TodayTripCount, &acc.AverageFarePerTrip,
		&acc.LastObservedTotal, &acc.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EarningsAccount{}, domain.ErrNotFound
		}
		return domain.EarningsAccount{}, err
	}
	return acc, nil
}
