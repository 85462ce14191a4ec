package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/unity-vault/vaultbot/pkg/dataaccess/monitoring"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ticketDalName = "ticket_dal"

// TicketDal is the data access layer for ticket records. Records are keyed by
// (guild, channel); closed tickets are kept for audit history.
type TicketDal interface {
	// SaveTicket upserts a ticket by its hosting channel.
	SaveTicket(ctx context.Context, ticket *entities.Ticket) error

	// GetTicketByChannel gets the ticket hosted in the given channel.
	// Returns ErrNotFound when the channel is not a ticket.
	GetTicketByChannel(ctx context.Context, guildID, channelID string) (*entities.Ticket, error)

	// CountActiveForUser counts the user's tickets in an active status
	// (open, reopened or escalated).
	CountActiveForUser(ctx context.Context, guildID, userID string) (int, error)
}

type ticketDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewTicketDal creates a new ticket data access layer.
func NewTicketDal(l *slog.Logger, client *mongo.Client) TicketDal {
	return &ticketDal{
		l:      l.With(slog.String(logging.KeyDal, ticketDalName)),
		client: client,
	}
}

func (d *ticketDal) collection() *mongo.Collection {
	return d.client.Database(mongoDatabase).Collection(collectionTickets)
}

func (d *ticketDal) SaveTicket(ctx context.Context, ticket *entities.Ticket) error {
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "save_ticket", mongoDatabase, collectionTickets).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "save_ticket", mongoDatabase, collectionTickets))
	defer t.ObserveDuration()

	opts := options.Update().SetUpsert(true)
	_, err := d.collection().UpdateOne(ctx,
		bson.M{"guild_id": ticket.GuildID, "channel_id": ticket.ChannelID},
		bson.M{"$set": ticket},
		opts,
	)
	if err != nil {
		return fmt.Errorf("error updating ticket: %w", err)
	}
	return nil
}

func (d *ticketDal) GetTicketByChannel(ctx context.Context, guildID, channelID string) (*entities.Ticket, error) {
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "get_ticket_by_channel", mongoDatabase, collectionTickets).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "get_ticket_by_channel", mongoDatabase, collectionTickets))
	defer t.ObserveDuration()

	var ticket entities.Ticket
	err := d.collection().FindOne(ctx, bson.M{
		"guild_id":   guildID,
		"channel_id": channelID,
	}).Decode(&ticket)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting ticket: %w", err)
	}
	return &ticket, nil
}

func (d *ticketDal) CountActiveForUser(ctx context.Context, guildID, userID string) (int, error) {
	monitoring.MongoTotalRequests.WithLabelValues(ticketDalName, "count_active_for_user", mongoDatabase, collectionTickets).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(ticketDalName, "count_active_for_user", mongoDatabase, collectionTickets))
	defer t.ObserveDuration()

	n, err := d.collection().CountDocuments(ctx, bson.M{
		"guild_id": guildID,
		"user_id":  userID,
		"status": bson.M{"$in": []entities.TicketStatus{
			entities.TicketStatusOpen,
			entities.TicketStatusReopened,
			entities.TicketStatusEscalated,
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("error counting tickets: %w", err)
	}
	return int(n), nil
}
