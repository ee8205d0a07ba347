package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// PositionCreatedEvent is published when a draft position is opened
type PositionCreatedEvent struct {
	PositionID string    `json:"positionId"`
	Type       Direction `json:"type"`
	Reference  string    `json:"reference,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *PositionCreatedEvent) EventType() string     { return "wms.disposition.position-created" }
func (e *PositionCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// PositionUpdatedEvent is published when opaque attributes of a draft change
type PositionUpdatedEvent struct {
	PositionID    string    `json:"positionId"`
	ChangedFields []string  `json:"changedFields"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e *PositionUpdatedEvent) EventType() string     { return "wms.disposition.position-updated" }
func (e *PositionUpdatedEvent) OccurredAt() time.Time { return e.UpdatedAt }

// LoadAssignedEvent is published when a load joins a draft position
type LoadAssignedEvent struct {
	PositionID string    `json:"positionId"`
	LoadID     string    `json:"loadId"`
	LoadCount  int       `json:"loadCount"`
	AssignedAt time.Time `json:"assignedAt"`
}

func (e *LoadAssignedEvent) EventType() string     { return "wms.disposition.load-assigned" }
func (e *LoadAssignedEvent) OccurredAt() time.Time { return e.AssignedAt }

// LoadUnassignedEvent is published when a load leaves a draft position
type LoadUnassignedEvent struct {
	PositionID   string    `json:"positionId"`
	LoadID       string    `json:"loadId"`
	LoadCount    int       `json:"loadCount"`
	UnassignedAt time.Time `json:"unassignedAt"`
}

func (e *LoadUnassignedEvent) EventType() string     { return "wms.disposition.load-unassigned" }
func (e *LoadUnassignedEvent) OccurredAt() time.Time { return e.UnassignedAt }

// PositionConfirmedEvent is published when a draft is promoted to confirmed
type PositionConfirmedEvent struct {
	PositionID  string    `json:"positionId"`
	Type        Direction `json:"type"`
	LoadIDs     []string  `json:"loadIds"`
	Capacity    Capacity  `json:"capacity"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

func (e *PositionConfirmedEvent) EventType() string     { return "wms.disposition.position-confirmed" }
func (e *PositionConfirmedEvent) OccurredAt() time.Time { return e.ConfirmedAt }

// PositionDeletedEvent is published when a draft is deleted. ReleasedLoadIDs
// lists the loads returned to the unassigned pool.
type PositionDeletedEvent struct {
	PositionID      string    `json:"positionId"`
	ReleasedLoadIDs []string  `json:"releasedLoadIds"`
	DeletedAt       time.Time `json:"deletedAt"`
}

func (e *PositionDeletedEvent) EventType() string     { return "wms.disposition.position-deleted" }
func (e *PositionDeletedEvent) OccurredAt() time.Time { return e.DeletedAt }
