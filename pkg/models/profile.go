package models

import "time"

// ProfileSnapshot is a compressed copy of the persistent browser profile
type ProfileSnapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	Path      string    `json:"-"` // archive location on disk (internal only)
}
