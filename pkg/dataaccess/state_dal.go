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

const stateDalName = "state_dal"

// StateDal is the data access layer for ephemeral interaction state. Rows
// are append-only; lookups are latest-wins and the sweeper deletes expired
// rows on a fixed interval.
type StateDal interface {
	// PutState appends a state row.
	PutState(ctx context.Context, state *entities.InteractionState) error

	// LatestState returns the newest non-expired row for the custom ID.
	// Returns ErrNotFound when there is no live row.
	LatestState(ctx context.Context, customID string, now time.Time) (*entities.InteractionState, error)

	// DeleteState removes every row for the custom ID. Called when the flow
	// the state was carrying has completed.
	DeleteState(ctx context.Context, customID string) error

	// DeleteExpired removes rows past their expiry and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type stateDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewStateDal creates a new interaction state data access layer.
func NewStateDal(l *slog.Logger, client *mongo.Client) StateDal {
	return &stateDal{
		l:      l.With(slog.String(logging.KeyDal, stateDalName)),
		client: client,
	}
}

func (d *stateDal) collection() *mongo.Collection {
	return d.client.Database(mongoDatabase).Collection(collectionInteractionState)
}

func (d *stateDal) PutState(ctx context.Context, state *entities.InteractionState) error {
	monitoring.MongoTotalRequests.WithLabelValues(stateDalName, "put_state", mongoDatabase, collectionInteractionState).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(stateDalName, "put_state", mongoDatabase, collectionInteractionState))
	defer t.ObserveDuration()

	if _, err := d.collection().InsertOne(ctx, state); err != nil {
		return fmt.Errorf("error inserting state: %w", err)
	}
	return nil
}

func (d *stateDal) LatestState(ctx context.Context, customID string, now time.Time) (*entities.InteractionState, error) {
	monitoring.MongoTotalRequests.WithLabelValues(stateDalName, "latest_state", mongoDatabase, collectionInteractionState).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(stateDalName, "latest_state", mongoDatabase, collectionInteractionState))
	defer t.ObserveDuration()

	opts := options.FindOne().SetSort(bson.M{"created_at": -1})
	var state entities.InteractionState
	err := d.collection().FindOne(ctx, bson.M{"custom_id": customID}, opts).Decode(&state)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting state: %w", err)
	}

	// An expired row still present before the sweep runs counts as missing.
	if state.Expired(now) {
		return nil, ErrNotFound
	}
	return &state, nil
}

func (d *stateDal) DeleteState(ctx context.Context, customID string) error {
	monitoring.MongoTotalRequests.WithLabelValues(stateDalName, "delete_state", mongoDatabase, collectionInteractionState).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(stateDalName, "delete_state", mongoDatabase, collectionInteractionState))
	defer t.ObserveDuration()

	if _, err := d.collection().DeleteMany(ctx, bson.M{"custom_id": customID}); err != nil {
		return fmt.Errorf("error deleting state: %w", err)
	}
	return nil
}

func (d *stateDal) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	monitoring.MongoTotalRequests.WithLabelValues(stateDalName, "delete_expired", mongoDatabase, collectionInteractionState).Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(stateDalName, "delete_expired", mongoDatabase, collectionInteractionState))
	defer t.ObserveDuration()

	res, err := d.collection().DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("error deleting expired state: %w", err)
	}
	return res.DeletedCount, nil
}
