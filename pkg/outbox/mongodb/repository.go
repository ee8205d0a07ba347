package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/disposition-service/pkg/outbox"
)

// CollectionName holds disposition outbox entries
const CollectionName = "disposition_outbox"

// published entries are kept for a week for replay and audit
const publishedTTL = 7 * 24 * time.Hour

// Repository is the MongoDB outbox store
type Repository struct {
	collection *mongo.Collection
}

// NewRepository binds the outbox collection in db
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection(CollectionName)}
}

// Append inserts entries; a mongo.SessionContext in ctx enlists the insert in its transaction
func (r *Repository) Append(ctx context.Context, entries []*outbox.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, entry)
	}
	if _, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to append outbox entries: %w", err)
	}
	return nil
}

// Due returns publishable entries, oldest first
func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]*outbox.Entry, error) {
	filter := bson.M{
		"publishedAt":   bson.M{"$exists": false},
		"attempts":      bson.M{"$lt": outbox.MaxAttempts},
		"nextAttemptAt": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, filter, opts)
}

// ForAggregate lists every entry written for one aggregate, oldest first
func (r *Repository) ForAggregate(ctx context.Context, aggregateID string) ([]*outbox.Entry, error) {
	return r.find(ctx, bson.M{"aggregateId": aggregateID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (r *Repository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*outbox.Entry, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]*outbox.Entry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode outbox entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"publishedAt": at}})
}

func (r *Repository) MarkFailed(ctx context.Context, id, reason string, retryAt time.Time) error {
	return r.update(ctx, id, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": reason, "nextAttemptAt": retryAt},
	})
}

func (r *Repository) update(ctx context.Context, id string, change bson.M) error {
	result, err := r.collection.UpdateByID(ctx, id, change)
	if err != nil {
		return fmt.Errorf("failed to update outbox entry %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	return nil
}

// EnsureIndexes creates the polling, aggregate and retention indexes
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "nextAttemptAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_due"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregate"),
		},
		{
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_published_ttl").
				SetExpireAfterSeconds(int32(publishedTTL.Seconds())),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}
