package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/unity-vault/vaultbot/pkg/dataaccess"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/unity-vault/vaultbot/pkg/messages"
	"github.com/unity-vault/vaultbot/pkg/ticketing"
	"golang.org/x/time/rate"
)

const (
	// TicketOpenID is the ID for the open ticket button on the panel.
	TicketOpenID = "ticket:open"

	// TicketSelectTypeID is the ID for the ticket type select menu.
	TicketSelectTypeID = "ticket:select:type"

	// TicketCloseID is the ID for the close button in a ticket channel.
	TicketCloseID = "ticket:close"

	// TicketCloseConfirmID is the ID for the close confirmation button.
	TicketCloseConfirmID = "ticket:close:confirm"

	// TicketEscalateID is the ID for the escalate button in a ticket channel.
	TicketEscalateID = "ticket:escalate"

	// TicketReopenID and TicketClaimID are not handled yet; the IDs are
	// reserved so existing messages stay stable when those flows land.
	TicketReopenID = "ticket:reopen"
	TicketClaimID  = "ticket:claim"

	// modalTicketPrefix prefixes the per-type ticket modals.
	modalTicketPrefix = "modal:ticket:"
)

const (
	// TicketEmoji is the emoji used on the open ticket button. (Envelope with arrow)
	TicketEmoji = "\U0001F4E9"

	// CloseEmoji is the emoji used on the close button. (Padlock)
	CloseEmoji = "\U0001F510"

	// EscalateEmoji is the emoji used on the escalate button. (Up arrow)
	EscalateEmoji = "⬆"
)

const (
	// stateTTL is how long a pending type selection stays valid before the
	// modal submit is dropped.
	stateTTL = 15 * time.Minute

	// modalSubjectID and modalDescriptionID are the text input IDs inside
	// the ticket modal.
	modalSubjectID     = "subject"
	modalDescriptionID = "description"
)

// ticketTypeLabels is what each ticket type shows as in the select menu.
var ticketTypeLabels = map[entities.TicketType]string{
	entities.TicketTypeSupport:     "Support",
	entities.TicketTypeReport:      "Report",
	entities.TicketTypePartnership: "Partnership",
	entities.TicketTypeSuggestion:  "Suggestion",
}

// ticketTypeDescriptions is the helper text under each select option.
var ticketTypeDescriptions = map[entities.TicketType]string{
	entities.TicketTypeSupport:     "Get help from the support team.",
	entities.TicketTypeReport:      "Report a user or an issue.",
	entities.TicketTypePartnership: "Propose a partnership.",
	entities.TicketTypeSuggestion:  "Suggest an improvement.",
}

// modalID returns the modal custom ID for a ticket type.
func modalID(t entities.TicketType) string {
	return modalTicketPrefix + string(t)
}

// stateCustomID keys pending type selections per user, so one user's
// selection can never satisfy another user's modal submit.
func stateCustomID(t entities.TicketType, userID string) string {
	return modalID(t) + ":" + userID
}

// statePayload is the JSON document stored between the type selection and
// the modal submit.
type statePayload struct {
	Type entities.TicketType `json:"type"`
}

// ticketPanelMessage is the message staff post with /ticket-panel.
func ticketPanelMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title: "Need a hand?",
				Description: "Open a ticket and a private channel will be created " +
					"for you and the support team. Nobody else can see it.",
				Color: 0x5865f2,
			},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    fmt.Sprintf("%s Open Ticket", TicketEmoji),
						Style:    discordgo.PrimaryButton,
						Emoji:    discordgo.ComponentEmoji{},
						CustomID: TicketOpenID,
					},
				},
			},
		},
	}
}

// openTicketHandler answers the panel button with the type select menu. The
// open-ticket cap is pre-checked here for fast feedback; the authoritative
// check runs again on the final submit.
func openTicketHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	active, err := a.TicketDal().CountActiveForUser(ctx, i.GuildID, i.Member.User.ID)
	if err != nil {
		return fmt.Errorf("error counting active tickets: %w", err)
	}
	if active >= ticketing.MaxOpenTickets {
		return respondEphemeral(a, i, fmt.Sprintf(messages.ErrTooManyOpenTickets, active))
	}

	options := make([]discordgo.SelectMenuOption, 0, len(entities.TicketTypes))
	for _, t := range entities.TicketTypes {
		options = append(options, discordgo.SelectMenuOption{
			Label:       ticketTypeLabels[t],
			Value:       string(t),
			Description: ticketTypeDescriptions[t],
		})
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: messages.TicketSelectType,
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.SelectMenu{
							MenuType:    discordgo.StringSelectMenu,
							CustomID:    TicketSelectTypeID,
							Placeholder: "Ticket type",
							Options:     options,
						},
					},
				},
			},
		},
	})
}

// selectTicketTypeHandler records the chosen type and presents the details
// modal. The selection is persisted so the submit can be verified even if
// it arrives on another gateway session.
func selectTicketTypeHandler(a IApp, i *discordgo.InteractionCreate) error {
	values := i.MessageComponentData().Values
	if len(values) != 1 {
		return fmt.Errorf("expected exactly one selected value, got %d", len(values))
	}

	ticketType := entities.TicketType(values[0])
	if !ticketType.Valid() {
		return fmt.Errorf("unknown ticket type %q", values[0])
	}

	payload, err := json.Marshal(statePayload{Type: ticketType})
	if err != nil {
		return fmt.Errorf("error encoding state payload: %w", err)
	}

	now := time.Now().UTC()
	if err := a.StateDal().PutState(context.Background(), &entities.InteractionState{
		CustomID:  stateCustomID(ticketType, i.Member.User.ID),
		Payload:   string(payload),
		CreatedAt: now,
		ExpiresAt: now.Add(stateTTL),
	}); err != nil {
		return fmt.Errorf("error persisting interaction state: %w", err)
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: modalID(ticketType),
			Title:    fmt.Sprintf("Open a %s ticket", ticketTypeLabels[ticketType]),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:  modalSubjectID,
							Label:     "Subject",
							Style:     discordgo.TextInputShort,
							Required:  true,
							MaxLength: ticketing.MaxSubjectLength,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    modalDescriptionID,
							Label:       "Description",
							Style:       discordgo.TextInputParagraph,
							Required:    true,
							MinLength:   ticketing.MinDescriptionLength,
							MaxLength:   ticketing.MaxDescriptionLength,
							Placeholder: "Tell us what is going on.",
						},
					},
				},
			},
		},
	})
}

// modalHandlers builds the modal dispatch table, one entry per ticket type.
func modalHandlers() map[string]commandProcessor {
	handlers := make(map[string]commandProcessor, len(entities.TicketTypes))
	for _, t := range entities.TicketTypes {
		handlers[modalID(t)] = makeTicketModalHandler(t)
	}
	return handlers
}

// makeTicketModalHandler is the final step of the create flow. A submit
// with no stored type selection is dropped without a reply: it is either a
// replay or arrived after expiry, and there is no conversation to continue.
func makeTicketModalHandler(ticketType entities.TicketType) commandProcessor {
	return func(a IApp, i *discordgo.InteractionCreate) error {
		ctx := context.Background()

		state, err := a.StateDal().LatestState(ctx, stateCustomID(ticketType, i.Member.User.ID), time.Now().UTC())
		if errors.Is(err, dataaccess.ErrNotFound) {
			a.Log().Warn("Dropping modal submit with no pending selection",
				slog.String(logging.KeyGuild, i.GuildID),
				slog.String(logging.KeyUser, i.Member.User.ID),
			)
			return nil
		} else if err != nil {
			return fmt.Errorf("error loading interaction state: %w", err)
		}

		var payload statePayload
		if err := json.Unmarshal([]byte(state.Payload), &payload); err != nil {
			return fmt.Errorf("error decoding state payload: %w", err)
		}
		if payload.Type != ticketType {
			return fmt.Errorf("state payload type %q does not match modal type %q", payload.Type, ticketType)
		}

		// Channel creation and the database writes take longer than the
		// interaction deadline allows.
		if err := deferEphemeral(a, i); err != nil {
			return fmt.Errorf("error deferring response: %w", err)
		}

		data := i.ModalSubmitData()
		ticket, err := a.Tickets().Open(ctx, ticketing.OpenRequest{
			GuildID:     i.GuildID,
			UserID:      i.Member.User.ID,
			Username:    i.Member.User.Username,
			Type:        ticketType,
			Subject:     modalTextValue(data, modalSubjectID),
			Description: modalTextValue(data, modalDescriptionID),
		})
		if err != nil {
			return editDeferred(a, i, openErrorMessage(err))
		}

		// The selection is consumed: the same row must not satisfy a
		// replayed submit within its TTL.
		clearTicketState(ctx, a.Log(), a.StateDal(), ticketType, i.Member.User.ID)

		return editDeferred(a, i, fmt.Sprintf("Your ticket has been created: <#%s>", ticket.ChannelID))
	}
}

// clearTicketState removes the consumed selection row once a submit has
// been accepted. Best effort: a failed delete leaves the row to the TTL
// sweep.
func clearTicketState(ctx context.Context, l *slog.Logger, states dataaccess.StateDal, ticketType entities.TicketType, userID string) {
	if err := states.DeleteState(ctx, stateCustomID(ticketType, userID)); err != nil {
		l.Warn("Error deleting consumed interaction state",
			slog.String(logging.KeyError, err.Error()),
			slog.String(logging.KeyUser, userID),
		)
	}
}

// openErrorMessage maps create failures to the user-facing reply. Guard and
// validation failures carry their own wording; anything else gets the
// generic apology.
func openErrorMessage(err error) string {
	var (
		validation *ticketing.ValidationError
		limited    *ticketing.RateLimitError
		tooMany    *ticketing.TooManyOpenError
	)

	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &limited):
		secs := int(limited.RetryAfter.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf(messages.ErrRateLimited, secs)
	case errors.As(err, &tooMany):
		return fmt.Sprintf(messages.ErrTooManyOpenTickets, tooMany.Count)
	default:
		return messages.ErrUserErrorProcessing
	}
}

// closeTicketHandler runs the first step of the two-step close: verify the
// guard, then present the confirmation button. Nothing changes state here.
func closeTicketHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	staff, err := isStaff(ctx, a, i)
	if err != nil {
		return fmt.Errorf("error checking staff capability: %w", err)
	}

	_, err = a.Tickets().RequestClose(ctx, ticketing.CloseRequest{
		GuildID:      i.GuildID,
		ChannelID:    i.ChannelID,
		ActorID:      i.Member.User.ID,
		ActorIsStaff: staff,
	})
	switch {
	case errors.Is(err, ticketing.ErrNotTicket):
		return respondEphemeral(a, i, messages.ErrNotATicket)
	case errors.Is(err, ticketing.ErrCloseDenied):
		return respondEphemeral(a, i, messages.ErrCloseDenied)
	case err != nil:
		return fmt.Errorf("error validating close request: %w", err)
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: messages.TicketCloseConfirm,
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    fmt.Sprintf("%s Close Ticket", CloseEmoji),
							Style:    discordgo.DangerButton,
							Emoji:    discordgo.ComponentEmoji{},
							CustomID: TicketCloseConfirmID,
						},
					},
				},
			},
		},
	})
}

// closeConfirmHandler commits the close. The guard is re-checked inside the
// service: permissions may have changed between the two steps.
func closeConfirmHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	staff, err := isStaff(ctx, a, i)
	if err != nil {
		return fmt.Errorf("error checking staff capability: %w", err)
	}

	err = a.Tickets().ConfirmClose(ctx, ticketing.CloseRequest{
		GuildID:      i.GuildID,
		ChannelID:    i.ChannelID,
		ActorID:      i.Member.User.ID,
		ActorIsStaff: staff,
	})
	switch {
	case errors.Is(err, ticketing.ErrNotTicket):
		return respondEphemeral(a, i, messages.ErrNotATicket)
	case errors.Is(err, ticketing.ErrCloseDenied):
		return respondEphemeral(a, i, messages.ErrCloseDenied)
	case err != nil:
		return fmt.Errorf("error closing ticket: %w", err)
	}

	// The hosting channel is normally gone by now, so the acknowledgement
	// can fail. The close itself is already committed.
	if err := respondEphemeral(a, i, messages.TicketClosed); err != nil {
		a.Log().Debug("Could not acknowledge close", slog.String(logging.KeyError, err.Error()))
	}
	return nil
}

// escalateTicketHandler flags the ticket for human triage. The reply is
// posted into the channel so everyone in the ticket sees it.
func escalateTicketHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	staff, err := isStaff(ctx, a, i)
	if err != nil {
		return fmt.Errorf("error checking staff capability: %w", err)
	}

	err = a.Tickets().Escalate(ctx, ticketing.EscalateRequest{
		GuildID:      i.GuildID,
		ChannelID:    i.ChannelID,
		ActorID:      i.Member.User.ID,
		ActorIsStaff: staff,
	})
	switch {
	case errors.Is(err, ticketing.ErrNotTicket):
		return respondEphemeral(a, i, messages.ErrNotATicket)
	case errors.Is(err, ticketing.ErrEscalateDenied):
		return respondEphemeral(a, i, messages.ErrEscalateDenied)
	case err != nil:
		return fmt.Errorf("error escalating ticket: %w", err)
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("%s %s", EscalateEmoji, messages.TicketEscalated),
		},
	})
}

// discordChannelManager creates and destroys the channels that host
// tickets.
type discordChannelManager struct {
	a IApp
}

func newDiscordChannelManager(a IApp) *discordChannelManager {
	return &discordChannelManager{a: a}
}

// ticketMemberPermissions is what the opener and the support roles get in a
// ticket channel.
const ticketMemberPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks

func (m *discordChannelManager) CreateTicketChannel(ctx context.Context, guild *entities.Guild, ticket *entities.Ticket) (string, error) {
	categoryID := guild.TicketCategoryID
	if categoryID == "" {
		categoryID = m.a.Config().DefaultTicketCategoryID
	}

	overwrites := []*discordgo.PermissionOverwrite{
		// Deny @everyone from seeing the ticket.
		{
			ID:   guild.ID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		// The opener can see and use the ticket.
		{
			ID:    ticket.UserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketMemberPermissions,
		},
	}
	for _, roleID := range guild.SupportRoles() {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: ticketMemberPermissions,
		})
	}

	channel, err := m.a.Session().GuildChannelCreateComplex(guild.ID, discordgo.GuildChannelCreateData{
		Name:                 ticket.Name(),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                ticket.Topic(),
		PermissionOverwrites: overwrites,
		ParentID:             categoryID,
	})
	if err != nil {
		return "", fmt.Errorf("error creating ticket channel: %w", err)
	}

	// The opening message failing is not worth failing the whole create
	// over; the channel exists and the record will be saved.
	msg, err := m.a.Session().ChannelMessageSendComplex(channel.ID, openingTicketMessage(ticket))
	if err != nil {
		m.a.Log().Error("Error sending ticket opening message", slog.String(logging.KeyError, err.Error()))
		return channel.ID, nil
	}
	if err := m.a.Session().ChannelMessagePin(channel.ID, msg.ID); err != nil {
		m.a.Log().Error("Error pinning ticket opening message", slog.String(logging.KeyError, err.Error()))
	}

	return channel.ID, nil
}

func (m *discordChannelManager) DeleteChannel(ctx context.Context, channelID, reason string) error {
	if _, err := m.a.Session().ChannelDelete(channelID); err != nil {
		return fmt.Errorf("error deleting channel %s: %w", channelID, err)
	}
	m.a.Log().Info("Deleted ticket channel",
		slog.String("channel", channelID),
		slog.String("reason", reason),
	)
	return nil
}

// openingTicketMessage is the pinned message at the top of a new ticket
// channel, carrying the close and escalate controls.
func openingTicketMessage(ticket *entities.Ticket) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s>, your ticket has been created. The team will be with you soon.", ticket.UserID),
		Embeds: []*discordgo.MessageEmbed{
			{
				Title: fmt.Sprintf("Ticket #%d", ticket.Number),
				Color: 0x5865f2,
				Fields: []*discordgo.MessageEmbedField{
					{
						Name:   "Type",
						Value:  string(ticket.Type),
						Inline: true,
					},
					{
						Name:   "Subject",
						Value:  ticket.Subject,
						Inline: true,
					},
					{
						Name:  "Description",
						Value: ticket.Description,
					},
				},
			},
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    fmt.Sprintf("%s Close", CloseEmoji),
						Style:    discordgo.SecondaryButton,
						Emoji:    discordgo.ComponentEmoji{},
						CustomID: TicketCloseID,
					},
					discordgo.Button{
						Label:    fmt.Sprintf("%s Escalate", EscalateEmoji),
						Style:    discordgo.PrimaryButton,
						Emoji:    discordgo.ComponentEmoji{},
						CustomID: TicketEscalateID,
					},
				},
			},
		},
	}
}

// discordLogSink posts audit events to the guild's log channel as embeds.
// Delivery is paced by a limiter so event bursts queue instead of tripping
// the platform rate limits.
type discordLogSink struct {
	a       IApp
	limiter *rate.Limiter
}

func newDiscordLogSink(a IApp, limiter *rate.Limiter) *discordLogSink {
	return &discordLogSink{
		a:       a,
		limiter: limiter,
	}
}

func (s *discordLogSink) Send(ctx context.Context, guild *entities.Guild, ev ticketing.LogEvent) error {
	TicketTransitions.WithLabelValues(ev.EventType()).Inc()

	channelID := guild.LogChannelID
	if channelID == "" {
		channelID = s.a.Config().DefaultLogChannelID
	}
	if channelID == "" {
		// No log channel configured anywhere; nothing to deliver to.
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("error waiting for audit pacing: %w", err)
	}

	if _, err := s.a.Session().ChannelMessageSendEmbed(channelID, auditEmbed(ev)); err != nil {
		return fmt.Errorf("error sending audit message: %w", err)
	}
	return nil
}

// auditEmbed renders one audit event. Colours follow the lifecycle: green
// for created, yellow for reopened, pink for escalated, red for closed.
func auditEmbed(ev ticketing.LogEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: AppName,
		},
	}

	switch e := ev.(type) {
	case ticketing.TicketCreated:
		embed.Title = fmt.Sprintf("Ticket #%d opened", e.Number)
		embed.Color = 0x57f287
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Opened by", Value: fmt.Sprintf("<@%s> (%s)", e.UserID, e.Username), Inline: true},
			{Name: "Type", Value: string(e.Type), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", e.ChannelID), Inline: true},
		}
	case ticketing.TicketClosed:
		embed.Title = fmt.Sprintf("Ticket #%d closed", e.Number)
		embed.Color = 0xed4245
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Closed by", Value: fmt.Sprintf("<@%s>", e.ClosedBy), Inline: true},
		}
	case ticketing.TicketReopened:
		embed.Title = fmt.Sprintf("Ticket #%d reopened", e.Number)
		embed.Color = 0xfee75c
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Reopened by", Value: fmt.Sprintf("<@%s>", e.ReopenedBy), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", e.ChannelID), Inline: true},
		}
	case ticketing.TicketEscalated:
		embed.Title = fmt.Sprintf("Ticket #%d escalated", e.Number)
		embed.Color = 0xeb459e
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Escalated by", Value: fmt.Sprintf("<@%s>", e.EscalatedBy), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", e.ChannelID), Inline: true},
		}
	case ticketing.ModAction:
		embed.Title = "Moderation action"
		embed.Color = 0xed4245
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Action", Value: e.Action, Inline: true},
			{Name: "Moderator", Value: fmt.Sprintf("<@%s>", e.Moderator), Inline: true},
			{Name: "Target", Value: e.Target, Inline: true},
		}
		if e.Reason != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Reason", Value: e.Reason,
			})
		}
	default:
		embed.Title = "Audit event"
		embed.Description = ev.EventType()
		embed.Color = 0x5865f2
	}

	return embed
}
