package idempotency

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store persists idempotency records. Claim and Relock must be atomic with
// respect to concurrent callers using the same key.
type Store interface {
	// Claim inserts rec, locked, unless a record for the same service and key
	// exists. It returns the existing record and false in that case.
	Claim(ctx context.Context, rec *Record) (*Record, bool, error)

	// Relock takes over a record that is neither completed nor locked after
	// staleBefore. It reports false when another request won the record.
	Relock(ctx context.Context, id primitive.ObjectID, staleBefore, now time.Time) (bool, error)

	// Complete stores the response and clears the lock
	Complete(ctx context.Context, id primitive.ObjectID, status int, body []byte, headers map[string]string, at time.Time) error

	// Release clears the lock without storing a response, so a retry runs again
	Release(ctx context.Context, id primitive.ObjectID) error
}

// MemoryStore keeps records in process for the in-memory storage backend and tests
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func memoryKey(service, key string) string { return service + "\x00" + key }

func clone(r *Record) *Record {
	c := *r
	c.Body = slices.Clone(r.Body)
	c.Headers = maps.Clone(r.Headers)
	return &c
}

func (s *MemoryStore) find(id primitive.ObjectID) *Record {
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, rec *Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(rec.Service, rec.Key)
	if existing, ok := s.records[k]; ok {
		return clone(existing), false, nil
	}
	s.records[k] = clone(rec)
	return clone(rec), true, nil
}

func (s *MemoryStore) Relock(_ context.Context, id primitive.ObjectID, staleBefore, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(id)
	if r == nil {
		return false, ErrNotFound
	}
	if r.Completed() || (r.LockedAt != nil && !r.LockedAt.Before(staleBefore)) {
		return false, nil
	}
	r.LockedAt = &now
	return true, nil
}

func (s *MemoryStore) Complete(_ context.Context, id primitive.ObjectID, status int, body []byte, headers map[string]string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(id)
	if r == nil {
		return ErrNotFound
	}
	r.Status, r.Body, r.Headers = status, slices.Clone(body), maps.Clone(headers)
	r.CompletedAt = &at
	r.LockedAt = nil
	return nil
}

func (s *MemoryStore) Release(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.find(id); r != nil {
		r.LockedAt = nil
	}
	return nil
}
