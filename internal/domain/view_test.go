package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDispositionView(t *testing.T) {
	l1 := loadWithItems("L1", DirectionExport, LoadItem{GrossWeight: 10})
	l2 := loadWithItems("L2", DirectionExport, LoadItem{GrossWeight: 20})
	l3 := loadWithItems("L3", DirectionExport, LoadItem{GrossWeight: 30})

	draft := &Position{PositionID: "P1", Type: DirectionExport, State: PositionStateDraft, LoadIDs: []string{"L2", "L1"}}
	snapshot := Capacity{TotalWeight: 99, LoadCount: 1}
	active := &Position{PositionID: "P2", Type: DirectionExport, State: PositionStateConfirmed, LoadIDs: []string{"L3"}, CapacitySnapshot: &snapshot}

	view := BuildDispositionView(DirectionExport, []*Position{draft}, []*Position{active}, []*Load{l1, l2, l3})

	assert.Equal(t, DirectionExport, view.Direction)
	require.Len(t, view.DraftPositions, 1)
	assert.Equal(t, []*Load{l2, l1}, view.DraftPositions[0].Loads)
	assert.Equal(t, Capacity{TotalWeight: 30, LoadCount: 2}, view.DraftPositions[0].Capacity)

	require.Len(t, view.ActivePositions, 1)
	assert.Equal(t, snapshot, view.ActivePositions[0].Capacity)

	// only draft membership holds a load out of the pool
	assert.Equal(t, []*Load{l3}, view.UnassignedLoads)
}

func TestBuildDispositionView_Empty(t *testing.T) {
	view := BuildDispositionView(DirectionImport, nil, nil, nil)
	assert.NotNil(t, view.DraftPositions)
	assert.NotNil(t, view.ActivePositions)
	assert.NotNil(t, view.UnassignedLoads)
}
