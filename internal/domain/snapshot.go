package domain

import "time"

// DriverLocationSnapshot is a point-in-time read of one driver's last-known
// checkpoint as reported by the backend's per-route driver-locations
// endpoint. The detector caches the previous snapshot per driver just long
// enough to diff it against the next poll, then discards it.
type DriverLocationSnapshot struct {
	DriverID              string    `json:"driver_id"`
	DriverName            string    `json:"driver_name"`
	JeepneyNumber         string    `json:"jeepney_number"`
	Route                 string    `json:"route"`
	LastScannedCheckpoint string    `json:"last_scanned_checkpoint"`
	LastUpdate            time.Time `json:"last_update"`
	ShiftStatus           string    `json:"shift_status"`
	ActivityStatus        string    `json:"activity_status"`
}
