package domain

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Load is a bookable shipment unit. Loads are owned by the load-editing
// subsystem; this service keeps a read model of them.
type Load struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	LoadID           string             `bson:"loadId"`
	Direction        Direction          `bson:"direction"`
	CargoDescription string             `bson:"cargoDescription"`
	Status           string             `bson:"status"`
	Reference        string             `bson:"reference,omitempty"`
	Items            []LoadItem         `bson:"items"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

// LoadItem is a physical piece of a load
type LoadItem struct {
	ItemID       string  `bson:"itemId"`
	GrossWeight  float64 `bson:"grossWeight"` // kg
	Width        float64 `bson:"width"`       // m
	Height       float64 `bson:"height"`      // m
	Length       float64 `bson:"length"`      // m
	Volume       float64 `bson:"volume"`      // m3
	Lademetre    float64 `bson:"lademetre"`
	PieceCount   int     `bson:"pieceCount"`
	PackageCount int     `bson:"packageCount"`
	Hazardous    bool    `bson:"hazardous"`
	UNNumber     string  `bson:"unNumber,omitempty"`
}

// NewLoad creates a load read-model entry
func NewLoad(loadID string, direction Direction, cargoDescription, status string, items []LoadItem) (*Load, error) {
	loadID = strings.TrimSpace(loadID)
	if loadID == "" {
		return nil, fmt.Errorf("%w: loadId is required", ErrInvalidInput)
	}
	if !direction.IsValid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, direction)
	}
	if items == nil {
		items = make([]LoadItem, 0)
	}

	now := time.Now().UTC()
	return &Load{
		LoadID:           loadID,
		Direction:        direction,
		CargoDescription: cargoDescription,
		Status:           status,
		Items:            items,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ApplyUpdate replaces the mutable attributes of the load with those of other,
// keeping identity and creation time
func (l *Load) ApplyUpdate(other *Load) {
	l.Direction = other.Direction
	l.CargoDescription = other.CargoDescription
	l.Status = other.Status
	l.Reference = other.Reference
	l.Items = other.Items
	l.UpdatedAt = time.Now().UTC()
}
