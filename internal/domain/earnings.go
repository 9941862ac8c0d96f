package domain

import "time"

// EarningsAccount is the per-driver running earnings aggregate.
// It is created lazily with zeroed values and mutated only by the ledger.
//
// LastObservedTotal is a snapshot of TodayTotal taken at the end of each
// driver-initiated refresh. It exists only to detect increases across a
// refresh boundary and is distinct from TodayTotal itself.
type EarningsAccount struct {
	DriverID           string    `json:"driver_id"`
	TodayTotal         float64   `json:"today_total"`
	WeeklyTotal        float64   `json:"weekly_total"`
	MonthlyTotal       float64   `json:"monthly_total"`
	TotalTripCount     int       `json:"total_trip_count"`
	TodayTripCount     int       `json:"today_trip_count"`
	AverageFarePerTrip float64   `json:"average_fare_per_trip"`
	LastObservedTotal  float64   `json:"last_observed_total"`
	LastUpdate         time.Time `json:"last_update"`
}
