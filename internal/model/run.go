package model

import "time"

// RunStats summarizes one pipeline run.
type RunStats struct {
	Raw             int            `json:"raw"`
	Accepted        int            `json:"accepted"`
	Rejected        map[string]int `json:"rejected,omitempty"`
	Duplicates      int            `json:"duplicates"`
	Geocoded        int            `json:"geocoded"`
	OutOfRegion     int            `json:"out_of_region"`
	Jittered        int            `json:"jittered"`
	WithCoordinates int            `json:"with_coordinates"`
}

// Run is a persisted pipeline snapshot.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Region    string    `json:"region"`
	Stats     RunStats  `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
}
