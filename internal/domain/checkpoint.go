package domain

import "time"

// CheckpointKind marks a checkpoint's position in a trip.
type CheckpointKind string

const (
	CheckpointStart    CheckpointKind = "start"
	CheckpointWaypoint CheckpointKind = "waypoint"
	CheckpointEnd      CheckpointKind = "end"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Checkpoint is a single scan of a named, located point along a route.
// It is an immutable value: produced exactly once per scan event and never
// mutated after construction.
type Checkpoint struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Kind        CheckpointKind `json:"kind"`
	Coordinates Coordinates    `json:"coordinates"`
	ScannedAt   time.Time      `json:"scanned_at"`
}
