package domain

import (
	"fmt"
	"strings"
)

// Direction is the flow of a load, and the type of the position carrying it
type Direction string

const (
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// ParseDirection accepts "export" or "import" in any case
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionExport:
		return DirectionExport, nil
	case DirectionImport:
		return DirectionImport, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
}

func (d Direction) IsValid() bool {
	return d == DirectionExport || d == DirectionImport
}

func (d Direction) String() string {
	return string(d)
}

// PositionState is the lifecycle state of a position
type PositionState string

const (
	PositionStateDraft     PositionState = "draft"
	PositionStateConfirmed PositionState = "confirmed"
)

func (s PositionState) IsValid() bool {
	return s == PositionStateDraft || s == PositionStateConfirmed
}

func (s PositionState) String() string {
	return string(s)
}
