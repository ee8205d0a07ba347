package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/wms-platform/disposition-service/internal/domain"
)

// LoadRepository is a map-backed domain.LoadRepository
type LoadRepository struct {
	mu    sync.RWMutex
	loads map[string]*domain.Load
}

// NewLoadRepository creates an empty repository
func NewLoadRepository() *LoadRepository {
	return &LoadRepository{loads: make(map[string]*domain.Load)}
}

func cloneLoad(l *domain.Load) *domain.Load {
	c := *l
	c.Items = slices.Clone(l.Items)
	return &c
}

// Save upserts load
func (r *LoadRepository) Save(ctx context.Context, load *domain.Load) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[load.LoadID] = cloneLoad(load)
	return nil
}

// FindByID returns a copy of the load, or nil when it does not exist
func (r *LoadRepository) FindByID(ctx context.Context, loadID string) (*domain.Load, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if l, ok := r.loads[loadID]; ok {
		return cloneLoad(l), nil
	}
	return nil, nil
}

// FindByIDs returns the known loads among loadIDs. Unknown ids are skipped.
func (r *LoadRepository) FindByIDs(ctx context.Context, loadIDs []string) ([]*domain.Load, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Load, 0, len(loadIDs))
	for _, id := range loadIDs {
		if l, ok := r.loads[id]; ok {
			out = append(out, cloneLoad(l))
		}
	}
	return out, nil
}

// FindByDirection returns every load of direction, oldest first
func (r *LoadRepository) FindByDirection(ctx context.Context, direction domain.Direction) ([]*domain.Load, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Load, 0)
	for _, l := range r.loads {
		if l.Direction == direction {
			out = append(out, cloneLoad(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LoadID < out[j].LoadID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
