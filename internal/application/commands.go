package application

import "time"

// GetDispositionViewQuery requests the disposition view for one direction
type GetDispositionViewQuery struct {
	Direction string
}

// CreatePositionCommand opens a new draft position
type CreatePositionCommand struct {
	Type             string
	Reference        *string
	VehicleRef       *string
	RouteRef         *string
	PlannedDeparture *time.Time
	Notes            *string
}

// GetPositionQuery represents the query to get a position by ID
type GetPositionQuery struct {
	PositionID string
}

// UpdatePositionCommand changes opaque attributes of a draft. Nil fields are
// left unchanged.
type UpdatePositionCommand struct {
	PositionID       string
	Reference        *string
	VehicleRef       *string
	RouteRef         *string
	PlannedDeparture *time.Time
	Notes            *string
}

// DeletePositionCommand deletes a draft position and releases its loads
type DeletePositionCommand struct {
	PositionID string
}

// AssignLoadCommand attaches a load to a draft position
type AssignLoadCommand struct {
	PositionID string
	LoadID     string
}

// UnassignLoadCommand detaches a load from a draft position
type UnassignLoadCommand struct {
	PositionID string
	LoadID     string
}

// ConfirmPositionCommand promotes a draft position to confirmed
type ConfirmPositionCommand struct {
	PositionID string
	// OperationID identifies a caller that may repeat the command, such as a
	// retried workflow activity. A repeat by the same operation returns the
	// confirmed position instead of failing with InvalidState.
	OperationID string
}

// BulkConfirmPositionsCommand confirms each listed position independently
type BulkConfirmPositionsCommand struct {
	PositionIDs []string
}

// UpsertLoadCommand creates or replaces a load in the read model
type UpsertLoadCommand struct {
	LoadID           string
	Direction        string
	CargoDescription string
	Status           string
	Reference        string
	Items            []LoadItemInput
}

// LoadItemInput is one physical item of an upserted load
type LoadItemInput struct {
	ItemID       string
	GrossWeight  float64
	Width        float64
	Height       float64
	Length       float64
	Volume       float64
	Lademetre    float64
	PieceCount   int
	PackageCount int
	Hazardous    bool
	UNNumber     string
}

// GetLoadQuery represents the query to get a load by ID
type GetLoadQuery struct {
	LoadID string
}
