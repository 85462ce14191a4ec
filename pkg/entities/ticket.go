package entities

import (
	"fmt"
	"time"
)

// TicketType is the kind of request a ticket was opened for.
type TicketType string

const (
	TicketTypeSupport     TicketType = "support"
	TicketTypeReport      TicketType = "report"
	TicketTypePartnership TicketType = "partnership"
	TicketTypeSuggestion  TicketType = "suggestion"
)

// TicketTypes lists every valid ticket type in display order.
var TicketTypes = []TicketType{
	TicketTypeSupport,
	TicketTypeReport,
	TicketTypePartnership,
	TicketTypeSuggestion,
}

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeSupport, TicketTypeReport, TicketTypePartnership, TicketTypeSuggestion:
		return true
	}
	return false
}

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "open"
	TicketStatusReopened  TicketStatus = "reopened"
	TicketStatusEscalated TicketStatus = "escalated"
	TicketStatusClosed    TicketStatus = "closed"
)

// Active reports whether the status counts against the opener's open-ticket
// cap. Closed tickets are retained for audit history but are not active.
func (s TicketStatus) Active() bool {
	switch s {
	case TicketStatusOpen, TicketStatusReopened, TicketStatusEscalated:
		return true
	}
	return false
}

// Ticket is a tracked support request. While it is active it is bound 1:1 to
// a dedicated channel; the record outlives the channel once closed.
type Ticket struct {
	// Number is the per-guild ticket number, allocated from the guild's
	// counter. Unique within a guild.
	Number int `json:"number" bson:"number"`

	// GuildID is the ID of the guild that the ticket is in.
	GuildID string `json:"guild_id" bson:"guild_id"`

	// ChannelID is the ID of the channel hosting the ticket. At most one
	// non-closed ticket exists per channel.
	ChannelID string `json:"channel_id" bson:"channel_id"`

	// UserID is the ID of the user that opened the ticket.
	UserID string `json:"user_id" bson:"user_id"`

	// Username is the username of the opener at creation time.
	Username string `json:"username" bson:"username"`

	// Type is the kind of request.
	Type TicketType `json:"type" bson:"type"`

	// Subject is the validated short summary.
	Subject string `json:"subject" bson:"subject"`

	// Description is the validated long form text.
	Description string `json:"description" bson:"description"`

	// Status is the lifecycle state.
	Status TicketStatus `json:"status" bson:"status"`

	// EscalatedAt is set each time the ticket is escalated.
	EscalatedAt *time.Time `json:"escalated_at,omitempty" bson:"escalated_at,omitempty"`

	// ClosedAt is set when the ticket is closed, cleared on reopen.
	ClosedAt *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`

	// ClosedBy is the ID of the user that closed the ticket.
	ClosedBy string `json:"closed_by" bson:"closed_by"`

	// CreatedAt is the time that the ticket was opened.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Name is the ticket channel name, e.g. "ticket-0042".
func (t *Ticket) Name() string {
	return fmt.Sprintf("ticket-%04d", t.Number)
}

// Topic is the ticket channel topic line.
func (t *Ticket) Topic() string {
	return fmt.Sprintf("Ticket #%d · %s · %s", t.Number, t.Type, t.Username)
}
