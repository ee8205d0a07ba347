package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Position is the aggregate root for the Disposition bounded context: a
// shippable consolidation unit grouping loads of a single direction
type Position struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	PositionID       string             `bson:"positionId"`
	Type             Direction          `bson:"type"`
	State            PositionState      `bson:"state"`
	LoadIDs          []string           `bson:"loadIds"`
	Reference        string             `bson:"reference,omitempty"`
	VehicleRef       string             `bson:"vehicleRef,omitempty"`
	RouteRef         string             `bson:"routeRef,omitempty"`
	PlannedDeparture *time.Time         `bson:"plannedDeparture,omitempty"`
	Notes            string             `bson:"notes,omitempty"`
	CapacitySnapshot *Capacity          `bson:"capacitySnapshot,omitempty"`
	Version          int64              `bson:"version"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
	ConfirmedAt      *time.Time         `bson:"confirmedAt,omitempty"`
	ConfirmedBy      string             `bson:"confirmedBy,omitempty"`
	DomainEvents     []DomainEvent      `bson:"-"`
}

// PositionAttributes holds the opaque attributes of a position. Nil fields
// are left untouched by Update.
type PositionAttributes struct {
	Reference        *string
	VehicleRef       *string
	RouteRef         *string
	PlannedDeparture *time.Time
	Notes            *string
}

// NewPosition creates an empty draft position of the given type
func NewPosition(positionType Direction, attrs PositionAttributes) (*Position, error) {
	if !positionType.IsValid() {
		return nil, fmt.Errorf("%w: position type must be export or import, got %q", ErrInvalidInput, positionType)
	}

	now := time.Now().UTC()
	p := &Position{
		PositionID:   uuid.New().String(),
		Type:         positionType,
		State:        PositionStateDraft,
		LoadIDs:      make([]string, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}
	p.applyAttributes(attrs)

	p.AddDomainEvent(&PositionCreatedEvent{
		PositionID: p.PositionID,
		Type:       p.Type,
		Reference:  p.Reference,
		CreatedAt:  now,
	})

	return p, nil
}

func (p *Position) IsDraft() bool {
	return p.State == PositionStateDraft
}

func (p *Position) IsConfirmed() bool {
	return p.State == PositionStateConfirmed
}

// HasLoad reports whether loadID is a member of the position
func (p *Position) HasLoad(loadID string) bool {
	return slices.Contains(p.LoadIDs, loadID)
}

func (p *Position) requireDraft(op string) error {
	if !p.IsDraft() {
		return fmt.Errorf("%w: cannot %s position %s in state %s", ErrInvalidState, op, p.PositionID, p.State)
	}
	return nil
}

// AssignLoad adds load to the position. owner is the draft position that
// currently holds the load, or nil. Assigning a load that is already a member
// is a no-op and reports added=false.
func (p *Position) AssignLoad(load *Load, owner *Position) (added bool, err error) {
	if err := p.requireDraft("assign a load to"); err != nil {
		return false, err
	}
	if load.Direction != p.Type {
		return false, fmt.Errorf("%w: load %s is %s, position %s is %s",
			ErrDirectionMismatch, load.LoadID, load.Direction, p.PositionID, p.Type)
	}
	if p.HasLoad(load.LoadID) {
		return false, nil
	}
	if owner != nil && owner.PositionID != p.PositionID {
		return false, fmt.Errorf("%w: load %s belongs to position %s", ErrAlreadyAssigned, load.LoadID, owner.PositionID)
	}

	now := time.Now().UTC()
	p.LoadIDs = append(p.LoadIDs, load.LoadID)
	p.UpdatedAt = now

	p.AddDomainEvent(&LoadAssignedEvent{
		PositionID: p.PositionID,
		LoadID:     load.LoadID,
		LoadCount:  len(p.LoadIDs),
		AssignedAt: now,
	})

	return true, nil
}

// UnassignLoad removes loadID from the position
func (p *Position) UnassignLoad(loadID string) error {
	if err := p.requireDraft("unassign a load from"); err != nil {
		return err
	}

	idx := slices.Index(p.LoadIDs, loadID)
	if idx < 0 {
		return fmt.Errorf("%w: load %s, position %s", ErrLoadNotInPosition, loadID, p.PositionID)
	}

	now := time.Now().UTC()
	p.LoadIDs = slices.Delete(p.LoadIDs, idx, idx+1)
	p.UpdatedAt = now

	p.AddDomainEvent(&LoadUnassignedEvent{
		PositionID:   p.PositionID,
		LoadID:       loadID,
		LoadCount:    len(p.LoadIDs),
		UnassignedAt: now,
	})

	return nil
}

// Update changes the opaque attributes of a draft position
func (p *Position) Update(attrs PositionAttributes) error {
	if err := p.requireDraft("update"); err != nil {
		return err
	}

	changed := p.applyAttributes(attrs)
	if len(changed) == 0 {
		return nil
	}

	now := time.Now().UTC()
	p.UpdatedAt = now
	p.AddDomainEvent(&PositionUpdatedEvent{
		PositionID:    p.PositionID,
		ChangedFields: changed,
		UpdatedAt:     now,
	})

	return nil
}

func (p *Position) applyAttributes(attrs PositionAttributes) []string {
	var changed []string

	setString := func(name string, dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = append(changed, name)
		}
	}

	setString("reference", &p.Reference, attrs.Reference)
	setString("vehicleRef", &p.VehicleRef, attrs.VehicleRef)
	setString("routeRef", &p.RouteRef, attrs.RouteRef)
	setString("notes", &p.Notes, attrs.Notes)

	if attrs.PlannedDeparture != nil {
		t := attrs.PlannedDeparture.UTC()
		if p.PlannedDeparture == nil || !p.PlannedDeparture.Equal(t) {
			p.PlannedDeparture = &t
			changed = append(changed, "plannedDeparture")
		}
	}

	return changed
}

// Confirm promotes the draft to confirmed and freezes the capacity computed
// from loads. loads are the resolved member loads of the position.
func (p *Position) Confirm(loads []*Load) error {
	if err := p.requireDraft("confirm"); err != nil {
		return err
	}
	if len(p.LoadIDs) == 0 {
		return fmt.Errorf("%w: position %s", ErrEmptyPosition, p.PositionID)
	}

	now := time.Now().UTC()
	snapshot := CalculateCapacity(loads)
	p.State = PositionStateConfirmed
	p.CapacitySnapshot = &snapshot
	p.ConfirmedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(&PositionConfirmedEvent{
		PositionID:  p.PositionID,
		Type:        p.Type,
		LoadIDs:     slices.Clone(p.LoadIDs),
		Capacity:    snapshot,
		ConfirmedAt: now,
	})

	return nil
}

// ConfirmOnce confirms the draft on behalf of operationID. When the position
// was already confirmed by the same non-empty operationID it is left as is
// and replayed is true.
func (p *Position) ConfirmOnce(loads []*Load, operationID string) (replayed bool, err error) {
	if operationID != "" && p.IsConfirmed() && p.ConfirmedBy == operationID {
		return true, nil
	}
	if err := p.Confirm(loads); err != nil {
		return false, err
	}
	p.ConfirmedBy = operationID
	return false, nil
}

// MarkDeleted checks that the position may be deleted and records the
// release of its loads
func (p *Position) MarkDeleted() error {
	if err := p.requireDraft("delete"); err != nil {
		return err
	}

	p.AddDomainEvent(&PositionDeletedEvent{
		PositionID:      p.PositionID,
		ReleasedLoadIDs: slices.Clone(p.LoadIDs),
		DeletedAt:       time.Now().UTC(),
	})

	return nil
}

// Capacity returns the frozen snapshot of a confirmed position, or the live
// capacity of loads otherwise
func (p *Position) Capacity(loads []*Load) Capacity {
	if p.IsConfirmed() && p.CapacitySnapshot != nil {
		return *p.CapacitySnapshot
	}
	return CalculateCapacity(loads)
}

// AddDomainEvent adds a domain event
func (p *Position) AddDomainEvent(event DomainEvent) {
	p.DomainEvents = append(p.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (p *Position) ClearDomainEvents() {
	p.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (p *Position) GetDomainEvents() []DomainEvent {
	return p.DomainEvents
}
