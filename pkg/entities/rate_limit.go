package entities

import "time"

// RateLimitEntry is a fixed-window counter row. The key encodes the action
// kind, the actor and any scope (see pkg/ratelimit). Entries are never
// explicitly deleted; a write after the window has elapsed resets the count.
type RateLimitEntry struct {
	// Key is the composite rate limit key.
	Key string `json:"key" bson:"key"`

	// Count is the number of allowed uses recorded in the current window.
	Count int `json:"count" bson:"count"`

	// WindowEnd is when the current window rolls over.
	WindowEnd time.Time `json:"window_end" bson:"window_end"`
}

// Expired reports whether the window has elapsed at the given time.
func (e *RateLimitEntry) Expired(now time.Time) bool {
	return e.WindowEnd.Before(now)
}
