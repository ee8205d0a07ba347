package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/disposition-service/internal/domain"
	sharedMongo "github.com/wms-platform/disposition-service/pkg/mongodb"
)

const loadsCollection = "loads"

// LoadRepository stores the load read model
type LoadRepository struct {
	collection *mongo.Collection
	inst       *sharedMongo.Instrumentation
}

func NewLoadRepository(db *mongo.Database, inst *sharedMongo.Instrumentation) *LoadRepository {
	return &LoadRepository{
		collection: db.Collection(loadsCollection),
		inst:       inst,
	}
}

// EnsureIndexes creates the load indexes
func (r *LoadRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "loadId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "direction", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create load indexes: %w", err)
	}
	return nil
}

func (r *LoadRepository) Save(ctx context.Context, load *domain.Load) error {
	return r.inst.Observe(ctx, loadsCollection, "upsert", func(ctx context.Context) error {
		doc := *load
		doc.ID = primitive.NilObjectID
		opts := options.Replace().SetUpsert(true)
		if _, err := r.collection.ReplaceOne(ctx, bson.M{"loadId": load.LoadID}, &doc, opts); err != nil {
			return fmt.Errorf("failed to save load: %w", err)
		}
		return nil
	})
}

func (r *LoadRepository) FindByID(ctx context.Context, loadID string) (*domain.Load, error) {
	var load domain.Load
	found := false
	err := r.inst.Observe(ctx, loadsCollection, "findOne", func(ctx context.Context) error {
		err := r.collection.FindOne(ctx, bson.M{"loadId": loadID}).Decode(&load)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &load, nil
}

func (r *LoadRepository) FindByIDs(ctx context.Context, loadIDs []string) ([]*domain.Load, error) {
	if len(loadIDs) == 0 {
		return []*domain.Load{}, nil
	}
	return r.find(ctx, bson.M{"loadId": bson.M{"$in": loadIDs}})
}

func (r *LoadRepository) FindByDirection(ctx context.Context, direction domain.Direction) ([]*domain.Load, error) {
	return r.find(ctx, bson.M{"direction": direction})
}

func (r *LoadRepository) find(ctx context.Context, filter bson.M) ([]*domain.Load, error) {
	loads := make([]*domain.Load, 0)
	err := r.inst.Observe(ctx, loadsCollection, "find", func(ctx context.Context) error {
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "loadId", Value: 1}})
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &loads)
	})
	return loads, err
}
