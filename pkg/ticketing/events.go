package ticketing

import "github.com/unity-vault/vaultbot/pkg/entities"

// Audit event discriminators, stable across deploys.
const (
	EventTicketCreated   = "ticket_created"
	EventTicketClosed    = "ticket_closed"
	EventTicketReopened  = "ticket_reopened"
	EventTicketEscalated = "ticket_escalated"
	EventModAction       = "mod_action"
)

// LogEvent is one audit record. It is a closed union: each lifecycle
// transition has its own variant carrying only the fields that transition
// needs, rather than one struct of optionals.
type LogEvent interface {
	// EventType returns the discriminator.
	EventType() string
}

// TicketCreated is emitted when a ticket is opened.
type TicketCreated struct {
	ChannelID string
	UserID    string
	Username  string
	Type      entities.TicketType
	Number    int
}

func (TicketCreated) EventType() string { return EventTicketCreated }

// TicketClosed is emitted when a ticket is closed, before the hosting
// channel is destroyed.
type TicketClosed struct {
	ChannelID string
	ClosedBy  string
	Number    int
}

func (TicketClosed) EventType() string { return EventTicketClosed }

// TicketReopened is emitted when a closed ticket is reopened.
type TicketReopened struct {
	ChannelID  string
	ReopenedBy string
	Number     int
}

func (TicketReopened) EventType() string { return EventTicketReopened }

// TicketEscalated is emitted on escalation, distinguishing the escalating
// actor.
type TicketEscalated struct {
	ChannelID   string
	EscalatedBy string
	Number      int
}

func (TicketEscalated) EventType() string { return EventTicketEscalated }

// ModAction is a generic moderation audit record.
type ModAction struct {
	Action    string
	Target    string
	Moderator string
	Reason    string
}

func (ModAction) EventType() string { return EventModAction }
