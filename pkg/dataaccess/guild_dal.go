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

const guildDalName = "guild_dal"

// GuildDal is the data access layer for per-guild configuration.
type GuildDal interface {
	// GetOrCreateGuild returns the guild config, inserting an empty one if
	// the guild has never been seen.
	GetOrCreateGuild(ctx context.Context, id string) (*entities.Guild, error)

	// SaveSettings persists the configurable fields of the guild. The ticket
	// counter is deliberately not written here; it only moves through
	// NextTicketNumber so concurrent allocations are never clobbered.
	SaveSettings(ctx context.Context, guild *entities.Guild) error

	// NextTicketNumber atomically allocates the next ticket number for the
	// guild. The increment is a single findAndModify, so two concurrent
	// creations can never receive the same number.
	NextTicketNumber(ctx context.Context, id string) (int, error)
}

type guildDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewGuildDal creates a new guild data access layer.
func NewGuildDal(l *slog.Logger, client *mongo.Client) GuildDal {
	return &guildDal{
		l:      l.With(slog.String(logging.KeyDal, guildDalName)),
		client: client,
	}
}

func (g *guildDal) collection() *mongo.Collection {
	return g.client.Database(mongoDatabase).Collection(collectionGuilds)
}

func (g *guildDal) GetOrCreateGuild(ctx context.Context, id string) (*entities.Guild, error) {
	monitoring.MongoTotalRequests.WithLabelValues(guildDalName, "get_or_create_guild", mongoDatabase, collectionGuilds).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(guildDalName, "get_or_create_guild", mongoDatabase, collectionGuilds))
	defer t.ObserveDuration()

	// Upsert with $setOnInsert so the lazy create is a single round trip and
	// a concurrent first access cannot insert twice.
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	guild := new(entities.Guild)
	err := g.collection().FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$setOnInsert": bson.M{"id": id}},
		opts,
	).Decode(guild)
	if err != nil {
		return nil, fmt.Errorf("error getting guild: %w", err)
	}
	return guild, nil
}

func (g *guildDal) SaveSettings(ctx context.Context, guild *entities.Guild) error {
	monitoring.MongoTotalRequests.WithLabelValues(guildDalName, "save_settings", mongoDatabase, collectionGuilds).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(guildDalName, "save_settings", mongoDatabase, collectionGuilds))
	defer t.ObserveDuration()

	opts := options.Update().SetUpsert(true)
	_, err := g.collection().UpdateOne(ctx,
		bson.M{"id": guild.ID},
		bson.M{"$set": bson.M{
			"log_channel_id":        guild.LogChannelID,
			"ticket_category_id":    guild.TicketCategoryID,
			"support_role_ids":      guild.SupportRoleIDs,
			"onboarding_channel_id": guild.OnboardingChannelID,
		}},
		opts,
	)
	if err != nil {
		return fmt.Errorf("error updating guild: %w", err)
	}
	return nil
}

func (g *guildDal) NextTicketNumber(ctx context.Context, id string) (int, error) {
	monitoring.MongoTotalRequests.WithLabelValues(guildDalName, "next_ticket_number", mongoDatabase, collectionGuilds).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(guildDalName, "next_ticket_number", mongoDatabase, collectionGuilds))
	defer t.ObserveDuration()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	guild := new(entities.Guild)
	err := g.collection().FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$inc": bson.M{"ticket_counter": 1}},
		opts,
	).Decode(guild)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("error incrementing ticket counter: %w", err)
	}
	return guild.TicketCounter, nil
}
