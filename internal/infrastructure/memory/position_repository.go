// Package memory holds in-process repositories used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/wms-platform/disposition-service/internal/domain"
)

// PositionRepository is a map-backed domain.PositionRepository. Stored
// positions are copies, so callers only change state through Save.
type PositionRepository struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	events    []domain.DomainEvent
}

// NewPositionRepository creates an empty repository
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{positions: make(map[string]*domain.Position)}
}

func clonePosition(p *domain.Position) *domain.Position {
	c := *p
	c.LoadIDs = slices.Clone(p.LoadIDs)
	if c.LoadIDs == nil {
		c.LoadIDs = make([]string, 0)
	}
	if p.CapacitySnapshot != nil {
		snap := *p.CapacitySnapshot
		c.CapacitySnapshot = &snap
	}
	if p.PlannedDeparture != nil {
		t := *p.PlannedDeparture
		c.PlannedDeparture = &t
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		c.ConfirmedAt = &t
	}
	c.DomainEvents = nil
	return &c
}

// Save inserts or compare-and-swaps position on its version
func (r *PositionRepository) Save(ctx context.Context, position *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.positions[position.PositionID]
	switch {
	case position.Version == 0 && exists:
		return fmt.Errorf("%w: position %s already exists", domain.ErrConcurrentModification, position.PositionID)
	case position.Version != 0 && !exists:
		return fmt.Errorf("%w: position %s no longer exists", domain.ErrConcurrentModification, position.PositionID)
	case exists && current.Version != position.Version:
		return fmt.Errorf("%w: position %s is at version %d, expected %d",
			domain.ErrConcurrentModification, position.PositionID, current.Version, position.Version)
	}

	position.Version++
	r.positions[position.PositionID] = clonePosition(position)
	r.events = append(r.events, position.GetDomainEvents()...)
	position.ClearDomainEvents()
	return nil
}

// FindByID returns a copy of the position, or nil when it does not exist
func (r *PositionRepository) FindByID(ctx context.Context, positionID string) (*domain.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.positions[positionID]; ok {
		return clonePosition(p), nil
	}
	return nil, nil
}

// FindByDirectionAndState returns matching positions oldest first
func (r *PositionRepository) FindByDirectionAndState(ctx context.Context, direction domain.Direction, state domain.PositionState) ([]*domain.Position, error) {
	return r.filter(func(p *domain.Position) bool {
		return p.Type == direction && p.State == state
	}), nil
}

// FindDraftByLoadID returns the draft position holding loadID, or nil
func (r *PositionRepository) FindDraftByLoadID(ctx context.Context, loadID string) (*domain.Position, error) {
	matches := r.filter(func(p *domain.Position) bool {
		return p.IsDraft() && p.HasLoad(loadID)
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// Delete removes position if its version still matches
func (r *PositionRepository) Delete(ctx context.Context, position *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.positions[position.PositionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPositionNotFound, position.PositionID)
	}
	if current.Version != position.Version {
		return fmt.Errorf("%w: position %s is at version %d, expected %d",
			domain.ErrConcurrentModification, position.PositionID, current.Version, position.Version)
	}

	delete(r.positions, position.PositionID)
	r.events = append(r.events, position.GetDomainEvents()...)
	position.ClearDomainEvents()
	return nil
}

// Events returns every domain event accepted by Save and Delete
func (r *PositionRepository) Events() []domain.DomainEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *PositionRepository) filter(match func(*domain.Position) bool) []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Position, 0)
	for _, p := range r.positions {
		if match(p) {
			out = append(out, clonePosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PositionID < out[j].PositionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
