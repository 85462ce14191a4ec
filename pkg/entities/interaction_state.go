package entities

import "time"

// InteractionState carries context between steps of a multi-step UI flow.
// Rows are keyed by the interaction custom ID; multiple rows may exist per
// key and lookups take the newest. Expired rows are removed by the sweeper.
type InteractionState struct {
	// CustomID is the interaction identifier that keys the state.
	CustomID string `json:"custom_id" bson:"custom_id"`

	// Payload is an opaque JSON document.
	Payload string `json:"payload" bson:"payload"`

	// CreatedAt orders rows for latest-wins lookup.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// ExpiresAt is the time after which the row is dead.
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the row is past its expiry at the given time.
func (s *InteractionState) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
