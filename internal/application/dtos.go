package application

import "time"

// CapacityDTO carries the capacity totals of a position
type CapacityDTO struct {
	TotalVolume    float64 `json:"totalVolume"`
	TotalWeight    float64 `json:"totalWeight"`
	TotalLademetre float64 `json:"totalLademetre"`
	LoadCount      int     `json:"loadCount"`
}

// PositionDTO represents a position in responses
type PositionDTO struct {
	PositionID       string      `json:"positionId"`
	Type             string      `json:"type"`
	State            string      `json:"state"`
	LoadIDs          []string    `json:"loadIds"`
	Loads            []*LoadDTO  `json:"loads"`
	Capacity         CapacityDTO `json:"capacity"`
	Reference        string      `json:"reference,omitempty"`
	VehicleRef       string      `json:"vehicleRef,omitempty"`
	RouteRef         string      `json:"routeRef,omitempty"`
	PlannedDeparture *time.Time  `json:"plannedDeparture,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	ConfirmedAt      *time.Time  `json:"confirmedAt,omitempty"`
}

// LoadDTO represents a load in responses
type LoadDTO struct {
	LoadID           string        `json:"loadId"`
	Direction        string        `json:"direction"`
	CargoDescription string        `json:"cargoDescription"`
	Status           string        `json:"status"`
	Reference        string        `json:"reference,omitempty"`
	Items            []LoadItemDTO `json:"items"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// LoadItemDTO represents a load item in responses
type LoadItemDTO struct {
	ItemID       string  `json:"itemId"`
	GrossWeight  float64 `json:"grossWeight"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Length       float64 `json:"length"`
	Volume       float64 `json:"volume"`
	Lademetre    float64 `json:"lademetre"`
	PieceCount   int     `json:"pieceCount"`
	PackageCount int     `json:"packageCount"`
	Hazardous    bool    `json:"hazardous"`
	UNNumber     string  `json:"unNumber,omitempty"`
}

// DispositionViewDTO is the disposition view for one direction
type DispositionViewDTO struct {
	Direction       string         `json:"direction"`
	DraftPositions  []*PositionDTO `json:"draftPositions"`
	ActivePositions []*PositionDTO `json:"activePositions"`
	UnassignedLoads []*LoadDTO     `json:"unassignedLoads"`
}

// BulkConfirmStatus is the outcome of one item of a bulk confirmation
type BulkConfirmStatus string

const (
	BulkConfirmStatusConfirmed BulkConfirmStatus = "confirmed"
	BulkConfirmStatusFailed    BulkConfirmStatus = "failed"
)

// BulkConfirmErrorDTO identifies a position that failed and why
type BulkConfirmErrorDTO struct {
	PositionID string `json:"positionId"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

// BulkConfirmItemResult is the tagged result of one position in a batch
type BulkConfirmItemResult struct {
	PositionID string               `json:"positionId"`
	Status     BulkConfirmStatus    `json:"status"`
	Position   *PositionDTO         `json:"position,omitempty"`
	Error      *BulkConfirmErrorDTO `json:"error,omitempty"`
}

// BulkConfirmResultDTO reports every attempt of a bulk confirmation in input
// order. Confirmed and Errors are projections of Results.
type BulkConfirmResultDTO struct {
	Confirmed []*PositionDTO          `json:"confirmed"`
	Errors    []BulkConfirmErrorDTO   `json:"errors"`
	Results   []BulkConfirmItemResult `json:"results"`
}

// NewBulkConfirmResult returns an empty result sized for n items
func NewBulkConfirmResult(n int) *BulkConfirmResultDTO {
	return &BulkConfirmResultDTO{
		Confirmed: make([]*PositionDTO, 0, n),
		Errors:    make([]BulkConfirmErrorDTO, 0),
		Results:   make([]BulkConfirmItemResult, 0, n),
	}
}

// AddConfirmed records a successful item
func (r *BulkConfirmResultDTO) AddConfirmed(position *PositionDTO) {
	r.Confirmed = append(r.Confirmed, position)
	r.Results = append(r.Results, BulkConfirmItemResult{
		PositionID: position.PositionID,
		Status:     BulkConfirmStatusConfirmed,
		Position:   position,
	})
}

// AddFailed records a failed item
func (r *BulkConfirmResultDTO) AddFailed(positionID, reason, message string) {
	e := BulkConfirmErrorDTO{PositionID: positionID, Reason: reason, Message: message}
	r.Errors = append(r.Errors, e)
	r.Results = append(r.Results, BulkConfirmItemResult{
		PositionID: positionID,
		Status:     BulkConfirmStatusFailed,
		Error:      &e,
	})
}
