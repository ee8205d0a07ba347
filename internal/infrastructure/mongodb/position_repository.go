package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/kafka"
	sharedMongo "github.com/wms-platform/disposition-service/pkg/mongodb"
	"github.com/wms-platform/disposition-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/disposition-service/pkg/outbox/mongodb"
)

const positionsCollection = "positions"

type PositionRepository struct {
	collection   *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.Repository
	eventFactory *cloudevents.EventFactory
	inst         *sharedMongo.Instrumentation
}

func NewPositionRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, inst *sharedMongo.Instrumentation) *PositionRepository {
	return &PositionRepository{
		collection:   db.Collection(positionsCollection),
		db:           db,
		outboxRepo:   outboxMongo.NewRepository(db),
		eventFactory: eventFactory,
		inst:         inst,
	}
}

// EnsureIndexes creates the position and outbox indexes
func (r *PositionRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "positionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "state", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "loadIds", Value: 1}, {Key: "state", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create position indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// Save writes the position and its pending events in one transaction. The
// write is conditional on the stored version.
func (r *PositionRepository) Save(ctx context.Context, position *domain.Position) error {
	next := position.Version + 1
	doc := *position
	doc.Version = next
	doc.UpdatedAt = time.Now().UTC()

	err := r.inst.Observe(ctx, positionsCollection, "save", func(ctx context.Context) error {
		return sharedMongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
			if position.Version == 0 {
				if _, err := r.collection.InsertOne(sessCtx, &doc); err != nil {
					if mongo.IsDuplicateKeyError(err) {
						return fmt.Errorf("%w: position %s already exists", domain.ErrConcurrentModification, position.PositionID)
					}
					return fmt.Errorf("failed to insert position: %w", err)
				}
			} else {
				filter := bson.M{"positionId": position.PositionID, "version": position.Version}
				res, err := r.collection.ReplaceOne(sessCtx, filter, &doc)
				if err != nil {
					return fmt.Errorf("failed to save position: %w", err)
				}
				if res.MatchedCount == 0 {
					return fmt.Errorf("%w: position %s changed since version %d",
						domain.ErrConcurrentModification, position.PositionID, position.Version)
				}
			}

			return r.saveEvents(sessCtx, position)
		})
	})
	if err != nil {
		return err
	}

	position.Version = next
	position.UpdatedAt = doc.UpdatedAt
	position.ClearDomainEvents()
	return nil
}

// Delete removes the position and records its pending events in one
// transaction, provided the stored version still matches
func (r *PositionRepository) Delete(ctx context.Context, position *domain.Position) error {
	err := r.inst.Observe(ctx, positionsCollection, "delete", func(ctx context.Context) error {
		return sharedMongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
			filter := bson.M{"positionId": position.PositionID, "version": position.Version}
			res, err := r.collection.DeleteOne(sessCtx, filter)
			if err != nil {
				return fmt.Errorf("failed to delete position: %w", err)
			}
			if res.DeletedCount == 0 {
				return fmt.Errorf("%w: position %s changed since version %d",
					domain.ErrConcurrentModification, position.PositionID, position.Version)
			}
			return r.saveEvents(sessCtx, position)
		})
	})
	if err != nil {
		return err
	}

	position.ClearDomainEvents()
	return nil
}

func (r *PositionRepository) saveEvents(sessCtx mongo.SessionContext, position *domain.Position) error {
	domainEvents := position.GetDomainEvents()
	if len(domainEvents) == 0 {
		return nil
	}

	entries := make([]*outbox.Entry, 0, len(domainEvents))
	for _, event := range domainEvents {
		cloudEvent := r.eventFactory.CreateEvent(sessCtx, event.EventType(), "position/"+position.PositionID, event)

		entry, err := outbox.NewEntry("Position", position.PositionID, kafka.Topics.DispositionEvents, cloudEvent)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	return r.outboxRepo.Append(sessCtx, entries)
}

func (r *PositionRepository) FindByID(ctx context.Context, positionID string) (*domain.Position, error) {
	var position domain.Position
	found := false
	err := r.inst.Observe(ctx, positionsCollection, "findOne", func(ctx context.Context) error {
		err := r.collection.FindOne(ctx, bson.M{"positionId": positionID}).Decode(&position)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &position, nil
}

func (r *PositionRepository) FindByDirectionAndState(ctx context.Context, direction domain.Direction, state domain.PositionState) ([]*domain.Position, error) {
	return r.find(ctx, bson.M{"type": direction, "state": state})
}

func (r *PositionRepository) FindDraftByLoadID(ctx context.Context, loadID string) (*domain.Position, error) {
	positions, err := r.find(ctx, bson.M{"loadIds": loadID, "state": domain.PositionStateDraft})
	if err != nil || len(positions) == 0 {
		return nil, err
	}
	return positions[0], nil
}

func (r *PositionRepository) find(ctx context.Context, filter bson.M) ([]*domain.Position, error) {
	positions := make([]*domain.Position, 0)
	err := r.inst.Observe(ctx, positionsCollection, "find", func(ctx context.Context) error {
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "positionId", Value: 1}})
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &positions)
	})
	return positions, err
}

// Outbox returns the store the outbox publisher drains
func (r *PositionRepository) Outbox() outbox.Repository {
	return r.outboxRepo
}
