// Package ticketing is the ticket lifecycle engine: creation, the two-step
// close, escalation and the service-level reopen.
package ticketing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unity-vault/vaultbot/pkg/dataaccess"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/unity-vault/vaultbot/pkg/ratelimit"
)

// MaxOpenTickets is the cap on simultaneously active tickets per opener.
const MaxOpenTickets = 2

// ChannelManager creates and destroys the platform channels that host
// tickets. Implemented over the Discord session in cmd/bot.
type ChannelManager interface {
	// CreateTicketChannel creates the private hosting channel, visible only
	// to the opener, the configured support roles and staff, and posts the
	// opening message with the lifecycle controls. Returns the channel ID.
	CreateTicketChannel(ctx context.Context, guild *entities.Guild, ticket *entities.Ticket) (string, error)

	// DeleteChannel destroys a hosting channel.
	DeleteChannel(ctx context.Context, channelID string, reason string) error
}

// LogSink delivers audit events. Delivery is advisory: the engine logs sink
// failures but never lets them roll back a committed transition.
type LogSink interface {
	Send(ctx context.Context, guild *entities.Guild, ev LogEvent) error
}

// Service orchestrates ticket state transitions over the stores and the
// platform collaborators.
type Service struct {
	// l is the logger.
	l *slog.Logger

	// guilds is the per-guild config store.
	guilds dataaccess.GuildDal

	// tickets is the ticket record store.
	tickets dataaccess.TicketDal

	// limiter guards ticket creation.
	limiter *ratelimit.Checker

	// channels manages the hosting channels.
	channels ChannelManager

	// sink receives audit events.
	sink LogSink

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewService creates the lifecycle engine.
func NewService(l *slog.Logger, guilds dataaccess.GuildDal, tickets dataaccess.TicketDal, limiter *ratelimit.Checker, channels ChannelManager, sink LogSink) *Service {
	return &Service{
		l:        l,
		guilds:   guilds,
		tickets:  tickets,
		limiter:  limiter,
		channels: channels,
		sink:     sink,
		now:      time.Now,
	}
}

// WithClock replaces the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OpenRequest is a validated-on-entry request to open a ticket.
type OpenRequest struct {
	GuildID     string
	UserID      string
	Username    string
	Type        entities.TicketType
	Subject     string
	Description string
}

// Open runs the create transition: guards first (rate limit, open-ticket
// cap), then counter allocation, channel creation, record insert and the
// audit event. A guard violation aborts before any side effect.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*entities.Ticket, error) {
	if !req.Type.Valid() {
		return nil, &ValidationError{Field: "type", Message: "Unknown ticket type."}
	}

	subject, err := ValidateSubject(req.Subject)
	if err != nil {
		return nil, err
	}
	description, err := ValidateDescription(req.Description)
	if err != nil {
		return nil, err
	}

	if res := s.limiter.Check(ctx, ratelimit.TicketCreateKey(req.GuildID, req.UserID)); !res.Allowed {
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	active, err := s.tickets.CountActiveForUser(ctx, req.GuildID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("error counting active tickets: %w", err)
	}
	if active >= MaxOpenTickets {
		return nil, &TooManyOpenError{Count: active}
	}

	guild, err := s.guilds.GetOrCreateGuild(ctx, req.GuildID)
	if err != nil {
		return nil, fmt.Errorf("error getting guild: %w", err)
	}

	// The counter allocation and the channel creation cannot be one
	// transaction. If channel creation fails the allocated number is simply
	// skipped; a gap is acceptable, a duplicate is not.
	number, err := s.guilds.NextTicketNumber(ctx, req.GuildID)
	if err != nil {
		return nil, fmt.Errorf("error allocating ticket number: %w", err)
	}

	ticket := &entities.Ticket{
		Number:      number,
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		Username:    req.Username,
		Type:        req.Type,
		Subject:     subject,
		Description: description,
		Status:      entities.TicketStatusOpen,
		CreatedAt:   s.now().UTC(),
	}

	channelID, err := s.channels.CreateTicketChannel(ctx, guild, ticket)
	if err != nil {
		return nil, fmt.Errorf("error creating ticket channel: %w", err)
	}
	ticket.ChannelID = channelID

	if err := s.tickets.SaveTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("error saving ticket: %w", err)
	}

	s.audit(ctx, guild, TicketCreated{
		ChannelID: ticket.ChannelID,
		UserID:    ticket.UserID,
		Username:  ticket.Username,
		Type:      ticket.Type,
		Number:    ticket.Number,
	})

	return ticket, nil
}

// CloseRequest identifies the ticket by hosting channel and carries the
// acting user. ActorIsStaff is resolved by the caller via the permission
// resolver.
type CloseRequest struct {
	GuildID      string
	ChannelID    string
	ActorID      string
	ActorIsStaff bool
}

// RequestClose is the first step of the two-step close: it validates the
// guard and returns the ticket so the caller can present the confirmation
// control. No state changes here.
func (s *Service) RequestClose(ctx context.Context, req CloseRequest) (*entities.Ticket, error) {
	ticket, err := s.lookup(ctx, req.GuildID, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := authorizeClose(ticket, req.ActorID, req.ActorIsStaff); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ConfirmClose is the second step. The guard is re-checked because the actor
// or ticket may have changed between steps. On success the record is marked
// closed and the audit event emitted before the hosting channel is
// destroyed, so a delivery failure can never mask a committed close; the
// channel delete itself is best-effort since the record is authoritative.
func (s *Service) ConfirmClose(ctx context.Context, req CloseRequest) error {
	ticket, err := s.lookup(ctx, req.GuildID, req.ChannelID)
	if err != nil {
		return err
	}
	if err := authorizeClose(ticket, req.ActorID, req.ActorIsStaff); err != nil {
		return err
	}

	now := s.now().UTC()
	ticket.Status = entities.TicketStatusClosed
	ticket.ClosedAt = &now
	ticket.ClosedBy = req.ActorID

	if err := s.tickets.SaveTicket(ctx, ticket); err != nil {
		return fmt.Errorf("error saving ticket: %w", err)
	}

	guild, err := s.guilds.GetOrCreateGuild(ctx, req.GuildID)
	if err != nil {
		s.l.Error("Error getting guild for close audit", slog.String(logging.KeyError, err.Error()))
	} else {
		s.audit(ctx, guild, TicketClosed{
			ChannelID: ticket.ChannelID,
			ClosedBy:  req.ActorID,
			Number:    ticket.Number,
		})
	}

	// Two racing confirms can both reach here; the loser deletes a channel
	// that is already gone, which is a harmless no-op.
	if err := s.channels.DeleteChannel(ctx, ticket.ChannelID, "Ticket closed"); err != nil {
		s.l.Warn("Error deleting ticket channel",
			slog.String(logging.KeyError, err.Error()),
			slog.String("channel_id", ticket.ChannelID),
		)
	}
	return nil
}

// EscalateRequest identifies the ticket and the escalating actor.
type EscalateRequest struct {
	GuildID      string
	ChannelID    string
	ActorID      string
	ActorIsStaff bool
}

// Escalate marks the ticket escalated for human triage. Staff only. A
// repeated escalate is accepted and re-stamps the timestamp; the transition
// is intentionally idempotent at the state layer.
func (s *Service) Escalate(ctx context.Context, req EscalateRequest) error {
	if !req.ActorIsStaff {
		return ErrEscalateDenied
	}

	ticket, err := s.lookup(ctx, req.GuildID, req.ChannelID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	ticket.Status = entities.TicketStatusEscalated
	ticket.EscalatedAt = &now
	// Escalating a closed ticket brings it back to an active status; the
	// close stamps go with it so the record is never closed and escalated
	// at once.
	ticket.ClosedAt = nil
	ticket.ClosedBy = ""

	if err := s.tickets.SaveTicket(ctx, ticket); err != nil {
		return fmt.Errorf("error saving ticket: %w", err)
	}

	guild, err := s.guilds.GetOrCreateGuild(ctx, req.GuildID)
	if err != nil {
		s.l.Error("Error getting guild for escalate audit", slog.String(logging.KeyError, err.Error()))
		return nil
	}
	s.audit(ctx, guild, TicketEscalated{
		ChannelID:   ticket.ChannelID,
		EscalatedBy: req.ActorID,
		Number:      ticket.Number,
	})
	return nil
}

// Reopen returns a closed ticket to the reopened state, clearing the close
// timestamp and closer. Service-level only; no UI control triggers it.
func (s *Service) Reopen(ctx context.Context, guildID, channelID, actorID string) error {
	ticket, err := s.lookup(ctx, guildID, channelID)
	if err != nil {
		return err
	}

	ticket.Status = entities.TicketStatusReopened
	ticket.ClosedAt = nil
	ticket.ClosedBy = ""

	if err := s.tickets.SaveTicket(ctx, ticket); err != nil {
		return fmt.Errorf("error saving ticket: %w", err)
	}

	guild, err := s.guilds.GetOrCreateGuild(ctx, guildID)
	if err != nil {
		s.l.Error("Error getting guild for reopen audit", slog.String(logging.KeyError, err.Error()))
		return nil
	}
	s.audit(ctx, guild, TicketReopened{
		ChannelID:  ticket.ChannelID,
		ReopenedBy: actorID,
		Number:     ticket.Number,
	})
	return nil
}

func (s *Service) lookup(ctx context.Context, guildID, channelID string) (*entities.Ticket, error) {
	ticket, err := s.tickets.GetTicketByChannel(ctx, guildID, channelID)
	if err != nil {
		if errors.Is(err, dataaccess.ErrNotFound) {
			return nil, ErrNotTicket
		}
		return nil, fmt.Errorf("error getting ticket: %w", err)
	}
	return ticket, nil
}

// audit delivers an event to the sink. Advisory output: a failure is logged
// and dropped, never propagated.
func (s *Service) audit(ctx context.Context, guild *entities.Guild, ev LogEvent) {
	if err := s.sink.Send(ctx, guild, ev); err != nil {
		s.l.Warn("Error delivering audit event",
			slog.String(logging.KeyError, err.Error()),
			slog.String("event", ev.EventType()),
		)
	}
}

func authorizeClose(ticket *entities.Ticket, actorID string, staff bool) error {
	if ticket.UserID != actorID && !staff {
		return ErrCloseDenied
	}
	return nil
}
