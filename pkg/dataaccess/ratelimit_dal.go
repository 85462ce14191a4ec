package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unity-vault/vaultbot/pkg/dataaccess/monitoring"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const rateLimitDalName = "rate_limit_dal"

// RateLimitDal is the data access layer for fixed-window rate limit
// counters. The window policy lives in pkg/ratelimit; this layer only
// provides the primitive operations, each of which is a single atomic
// Mongo update.
type RateLimitDal interface {
	// GetEntry returns the counter row for the key, or ErrNotFound.
	GetEntry(ctx context.Context, key string) (*entities.RateLimitEntry, error)

	// StartWindow resets the key to count=1 with the given window end. Used
	// both for first use and for a write after the window has elapsed.
	StartWindow(ctx context.Context, key string, windowEnd time.Time) error

	// Increment bumps the counter if, and only if, the count is still below
	// the limit and the window has not elapsed. Returns false without
	// mutating anything otherwise; a denied check never writes.
	Increment(ctx context.Context, key string, limit int, now time.Time) (bool, error)
}

type rateLimitDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewRateLimitDal creates a new rate limit data access layer.
func NewRateLimitDal(l *slog.Logger, client *mongo.Client) RateLimitDal {
	return &rateLimitDal{
		l:      l.With(slog.String(logging.KeyDal, rateLimitDalName)),
		client: client,
	}
}

func (d *rateLimitDal) collection() *mongo.Collection {
	return d.client.Database(mongoDatabase).Collection(collectionRateLimits)
}

func (d *rateLimitDal) GetEntry(ctx context.Context, key string) (*entities.RateLimitEntry, error) {
	monitoring.MongoTotalRequests.WithLabelValues(rateLimitDalName, "get_entry", mongoDatabase, collectionRateLimits).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(rateLimitDalName, "get_entry", mongoDatabase, collectionRateLimits))
	defer t.ObserveDuration()

	var entry entities.RateLimitEntry
	err := d.collection().FindOne(ctx, bson.M{"key": key}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting rate limit entry: %w", err)
	}
	return &entry, nil
}

func (d *rateLimitDal) StartWindow(ctx context.Context, key string, windowEnd time.Time) error {
	monitoring.MongoTotalRequests.WithLabelValues(rateLimitDalName, "start_window", mongoDatabase, collectionRateLimits).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(rateLimitDalName, "start_window", mongoDatabase, collectionRateLimits))
	defer t.ObserveDuration()

	opts := options.Update().SetUpsert(true)
	_, err := d.collection().UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"count": 1, "window_end": windowEnd}},
		opts,
	)
	if err != nil {
		return fmt.Errorf("error starting rate limit window: %w", err)
	}
	return nil
}

func (d *rateLimitDal) Increment(ctx context.Context, key string, limit int, now time.Time) (bool, error) {
	monitoring.MongoTotalRequests.WithLabelValues(rateLimitDalName, "increment", mongoDatabase, collectionRateLimits).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(rateLimitDalName, "increment", mongoDatabase, collectionRateLimits))
	defer t.ObserveDuration()

	// The filter carries the guard, so the increment is conditional and
	// atomic: a concurrent burst cannot push the count past the limit.
	res, err := d.collection().UpdateOne(ctx,
		bson.M{
			"key":        key,
			"count":      bson.M{"$lt": limit},
			"window_end": bson.M{"$gt": now},
		},
		bson.M{"$inc": bson.M{"count": 1}},
	)
	if err != nil {
		return false, fmt.Errorf("error incrementing rate limit: %w", err)
	}
	return res.ModifiedCount > 0, nil
}
