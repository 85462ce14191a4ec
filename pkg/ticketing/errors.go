package ticketing

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced to the actor. Their text is user-safe; handlers
// render them in an ephemeral reply and never retry.
var (
	// ErrNotTicket is returned when the channel has no ticket record, e.g. a
	// stale button on a deleted ticket.
	ErrNotTicket = errors.New("this channel is not a ticket")

	// ErrCloseDenied is returned when the actor is neither the opener nor
	// staff. Both steps of the close flow check it independently.
	ErrCloseDenied = errors.New("only the ticket opener or staff can close this ticket")

	// ErrEscalateDenied is returned when a non-staff actor tries to
	// escalate.
	ErrEscalateDenied = errors.New("only staff can escalate this ticket")
)

// ValidationError reports user-supplied text out of bounds. It is surfaced
// inline with no side effect.
type ValidationError struct {
	// Field is the input that failed.
	Field string

	// Message is the user-facing explanation.
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RateLimitError reports a tripped creation guard, with a retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// TooManyOpenError reports the open-ticket cap being hit.
type TooManyOpenError struct {
	Count int
}

func (e *TooManyOpenError) Error() string {
	return fmt.Sprintf("you have %d open ticket(s); please wait for them to be closed before opening more", e.Count)
}
