package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "idempotency_keys"

// MongoStore keeps records in MongoDB; expired records are removed by a TTL index
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(CollectionName)}
}

// Claim upserts on {service, key}. The pre-image tells a fresh insert apart
// from an existing record.
func (s *MongoStore) Claim(ctx context.Context, rec *Record) (*Record, bool, error) {
	filter := bson.M{"service": rec.Service, "key": rec.Key}
	update := bson.M{"$setOnInsert": rec}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var existing Record
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return rec, true, nil
	case mongo.IsDuplicateKeyError(err):
		// lost an upsert race on the unique index; the winner's record is there now
		if err := s.collection.FindOne(ctx, filter).Decode(&existing); err != nil {
			return nil, false, fmt.Errorf("failed to read idempotency key %s: %w", rec.Key, err)
		}
		return &existing, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to claim idempotency key %s: %w", rec.Key, err)
	}
	return &existing, false, nil
}

func (s *MongoStore) Relock(ctx context.Context, id primitive.ObjectID, staleBefore, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":         id,
		"completedAt": nil,
		"$or": bson.A{
			bson.M{"lockedAt": nil},
			bson.M{"lockedAt": bson.M{"$lt": staleBefore}},
		},
	}
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"lockedAt": now}})
	if err != nil {
		return false, fmt.Errorf("failed to relock idempotency record %s: %w", id.Hex(), err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) Complete(ctx context.Context, id primitive.ObjectID, status int, body []byte, headers map[string]string, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"status":      status,
			"body":        body,
			"headers":     headers,
			"completedAt": at,
		},
		"$unset": bson.M{"lockedAt": ""},
	}
	if _, err := s.collection.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to store idempotent response %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *MongoStore) Release(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.collection.UpdateByID(ctx, id, bson.M{"$unset": bson.M{"lockedAt": ""}}); err != nil {
		return fmt.Errorf("failed to release idempotency record %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "service", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_service_key"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	})
	return err
}
