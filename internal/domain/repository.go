package domain

import "context"

// PositionRepository defines the interface for position persistence.
// Save is a compare-and-swap on Version: a Version of zero inserts, any other
// value must match the stored version or ErrConcurrentModification is
// returned. On success Version is incremented and pending domain events are
// handed to the outbox in the same write.
type PositionRepository interface {
	Save(ctx context.Context, position *Position) error
	FindByID(ctx context.Context, positionID string) (*Position, error)
	FindByDirectionAndState(ctx context.Context, direction Direction, state PositionState) ([]*Position, error)
	FindDraftByLoadID(ctx context.Context, loadID string) (*Position, error)
	Delete(ctx context.Context, position *Position) error
}

// LoadRepository defines the interface for the load read model
type LoadRepository interface {
	Save(ctx context.Context, load *Load) error
	FindByID(ctx context.Context, loadID string) (*Load, error)
	FindByIDs(ctx context.Context, loadIDs []string) ([]*Load, error)
	FindByDirection(ctx context.Context, direction Direction) ([]*Load, error)
}
