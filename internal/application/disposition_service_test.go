package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/internal/infrastructure/locking"
	"github.com/wms-platform/disposition-service/internal/infrastructure/memory"
	apperrors "github.com/wms-platform/disposition-service/pkg/errors"
	"github.com/wms-platform/disposition-service/pkg/logging"
)

// faultyPositionRepository fails Save for the positions listed in failSave
type faultyPositionRepository struct {
	*memory.PositionRepository
	failSave map[string]error
}

func (r *faultyPositionRepository) Save(ctx context.Context, position *domain.Position) error {
	if err, ok := r.failSave[position.PositionID]; ok {
		return err
	}
	return r.PositionRepository.Save(ctx, position)
}

type testFixture struct {
	service   *DispositionApplicationService
	positions *faultyPositionRepository
	loads     *memory.LoadRepository
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	cfg := logging.DefaultConfig("disposition-test")
	cfg.Output = io.Discard

	positions := &faultyPositionRepository{
		PositionRepository: memory.NewPositionRepository(),
		failSave:           make(map[string]error),
	}
	loads := memory.NewLoadRepository()

	return &testFixture{
		service:   NewDispositionApplicationService(positions, loads, locking.NewKeyedMutex(), logging.New(cfg), nil),
		positions: positions,
		loads:     loads,
	}
}

func (f *testFixture) addLoad(t *testing.T, id, direction string, weight, volume, lademetre float64) {
	t.Helper()
	_, err := f.service.UpsertLoad(context.Background(), UpsertLoadCommand{
		LoadID:    id,
		Direction: direction,
		Status:    "open",
		Items: []LoadItemInput{
			{ItemID: id + "-1", GrossWeight: weight, Volume: volume, Lademetre: lademetre, PieceCount: 1, PackageCount: 1},
		},
	})
	require.NoError(t, err)
}

func (f *testFixture) createPosition(t *testing.T, positionType string) *PositionDTO {
	t.Helper()
	p, err := f.service.CreatePosition(context.Background(), CreatePositionCommand{Type: positionType})
	require.NoError(t, err)
	return p
}

func (f *testFixture) assign(t *testing.T, positionID, loadID string) *PositionDTO {
	t.Helper()
	p, err := f.service.AssignLoad(context.Background(), AssignLoadCommand{PositionID: positionID, LoadID: loadID})
	require.NoError(t, err)
	return p
}

func requireAppCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreatePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := "TOUR-7"
	p, err := f.service.CreatePosition(ctx, CreatePositionCommand{Type: " Export ", Reference: &ref})
	require.NoError(t, err)
	assert.Equal(t, "export", p.Type)
	assert.Equal(t, "draft", p.State)
	assert.Equal(t, "TOUR-7", p.Reference)
	assert.Empty(t, p.LoadIDs)
	assert.Equal(t, CapacityDTO{}, p.Capacity)

	_, err = f.service.CreatePosition(ctx, CreatePositionCommand{Type: "sideways"})
	requireAppCode(t, err, apperrors.CodeValidationError)
}

func TestAssignLoad_CapacityFollowsMembership(t *testing.T) {
	f := newFixture(t)
	f.addLoad(t, "L1", "export", 500.25, 10.5, 2.4)
	f.addLoad(t, "L2", "export", 499, 4.5, 1.2)
	p := f.createPosition(t, "export")

	f.assign(t, p.PositionID, "L1")
	got := f.assign(t, p.PositionID, "L2")

	assert.Equal(t, []string{"L1", "L2"}, got.LoadIDs)
	assert.Equal(t, CapacityDTO{TotalVolume: 15, TotalWeight: 999.25, TotalLademetre: 3.6, LoadCount: 2}, got.Capacity)
	require.Len(t, got.Loads, 2)
	assert.Equal(t, "L1", got.Loads[0].LoadID)
}

func TestAssignLoad_DirectionMismatchLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "import", 100, 1, 1)
	p := f.createPosition(t, "export")

	_, err := f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: p.PositionID, LoadID: "L1"})
	requireAppCode(t, err, apperrors.CodeDirectionMismatch)

	stored, err := f.service.GetPosition(ctx, GetPositionQuery{PositionID: p.PositionID})
	require.NoError(t, err)
	assert.Empty(t, stored.LoadIDs)
	assert.Equal(t, p.Version, stored.Version)

	view, err := f.service.GetDispositionView(ctx, GetDispositionViewQuery{Direction: "import"})
	require.NoError(t, err)
	require.Len(t, view.UnassignedLoads, 1)
	assert.Equal(t, "L1", view.UnassignedLoads[0].LoadID)
}

func TestAssignLoad_AlreadyAssignedAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100, 1, 1)
	p1 := f.createPosition(t, "export")
	p2 := f.createPosition(t, "export")

	first := f.assign(t, p1.PositionID, "L1")

	_, err := f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: p2.PositionID, LoadID: "L1"})
	requireAppCode(t, err, apperrors.CodeAlreadyAssigned)

	again := f.assign(t, p1.PositionID, "L1")
	assert.Equal(t, []string{"L1"}, again.LoadIDs)
	assert.Equal(t, first.Version, again.Version)
}

func TestAssignLoad_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100, 1, 1)
	p := f.createPosition(t, "export")

	_, err := f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: "missing", LoadID: "L1"})
	requireAppCode(t, err, apperrors.CodeNotFound)

	_, err = f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: p.PositionID, LoadID: "missing"})
	requireAppCode(t, err, apperrors.CodeNotFound)
}

func TestAssignLoad_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	f.addLoad(t, "L1", "export", 100, 1, 1)

	const contenders = 8
	positionIDs := make([]string, contenders)
	for i := range positionIDs {
		positionIDs[i] = f.createPosition(t, "export").PositionID
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i, id := range positionIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.service.AssignLoad(context.Background(), AssignLoadCommand{PositionID: id, LoadID: "L1"})
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		requireAppCode(t, err, apperrors.CodeAlreadyAssigned)
	}
	assert.Equal(t, 1, winners)
}

func TestUnassignLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100, 1, 1)
	p := f.createPosition(t, "export")
	f.assign(t, p.PositionID, "L1")

	require.NoError(t, f.service.UnassignLoad(ctx, UnassignLoadCommand{PositionID: p.PositionID, LoadID: "L1"}))

	err := f.service.UnassignLoad(ctx, UnassignLoadCommand{PositionID: p.PositionID, LoadID: "L1"})
	requireAppCode(t, err, apperrors.CodeNotFound)

	stored, err := f.service.GetPosition(ctx, GetPositionQuery{PositionID: p.PositionID})
	require.NoError(t, err)
	assert.Empty(t, stored.LoadIDs)
	assert.Equal(t, 0, stored.Capacity.LoadCount)
}

func TestConfirmPosition_EmptyThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100.5, 2, 1.2)
	p := f.createPosition(t, "export")

	_, err := f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID})
	requireAppCode(t, err, apperrors.CodeEmptyPosition)

	f.assign(t, p.PositionID, "L1")
	confirmed, err := f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", confirmed.State)
	assert.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, CapacityDTO{TotalVolume: 2, TotalWeight: 100.5, TotalLademetre: 1.2, LoadCount: 1}, confirmed.Capacity)
}

func TestConfirmedPosition_KeepsCapacitySnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100, 2, 1)
	p := f.createPosition(t, "export")
	f.assign(t, p.PositionID, "L1")
	_, err := f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID})
	require.NoError(t, err)

	f.addLoad(t, "L1", "export", 900, 9, 9)

	stored, err := f.service.GetPosition(ctx, GetPositionQuery{PositionID: p.PositionID})
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Capacity.TotalWeight)
	require.Len(t, stored.Loads, 1)
	assert.Equal(t, 900.0, stored.Loads[0].Items[0].GrossWeight)
}

func TestConfirmedPosition_RefusesMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100, 1, 1)
	f.addLoad(t, "L2", "export", 100, 1, 1)
	p := f.createPosition(t, "export")
	f.assign(t, p.PositionID, "L1")
	_, err := f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID})
	require.NoError(t, err)

	_, err = f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID})
	requireAppCode(t, err, apperrors.CodeInvalidState)

	_, err = f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: p.PositionID, LoadID: "L2"})
	requireAppCode(t, err, apperrors.CodeInvalidState)

	err = f.service.UnassignLoad(ctx, UnassignLoadCommand{PositionID: p.PositionID, LoadID: "L1"})
	requireAppCode(t, err, apperrors.CodeInvalidState)

	err = f.service.DeletePosition(ctx, DeletePositionCommand{PositionID: p.PositionID})
	requireAppCode(t, err, apperrors.CodeInvalidState)

	notes := "late"
	_, err = f.service.UpdatePosition(ctx, UpdatePositionCommand{PositionID: p.PositionID, Notes: &notes})
	requireAppCode(t, err, apperrors.CodeInvalidState)

	stored, err := f.service.GetPosition(ctx, GetPositionQuery{PositionID: p.PositionID})
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, stored.LoadIDs)
	assert.Equal(t, "confirmed", stored.State)
}

func TestConfirmPosition_RepeatedBySameOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 100, 1, 1)
	p := f.createPosition(t, "export")
	f.assign(t, p.PositionID, "L1")

	cmd := ConfirmPositionCommand{PositionID: p.PositionID, OperationID: "bulk-confirm-1/run-1"}
	first, err := f.service.ConfirmPosition(ctx, cmd)
	require.NoError(t, err)

	// a repeat must not write again
	f.positions.failSave[p.PositionID] = errors.New("unexpected save")

	again, err := f.service.ConfirmPosition(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", again.State)
	assert.Equal(t, first.ConfirmedAt, again.ConfirmedAt)
	assert.Equal(t, first.Capacity, again.Capacity)

	_, err = f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID, OperationID: "bulk-confirm-2/run-1"})
	requireAppCode(t, err, apperrors.CodeInvalidState)

	_, err = f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: p.PositionID})
	requireAppCode(t, err, apperrors.CodeInvalidState)
}

func TestDeletePosition_ReleasesLoads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPosition(t, "import")
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("L%d", i)
		f.addLoad(t, id, "import", 10, 1, 1)
		f.assign(t, p.PositionID, id)
	}

	view, err := f.service.GetDispositionView(ctx, GetDispositionViewQuery{Direction: "import"})
	require.NoError(t, err)
	assert.Empty(t, view.UnassignedLoads)
	require.Len(t, view.DraftPositions, 1)

	require.NoError(t, f.service.DeletePosition(ctx, DeletePositionCommand{PositionID: p.PositionID}))

	view, err = f.service.GetDispositionView(ctx, GetDispositionViewQuery{Direction: "import"})
	require.NoError(t, err)
	assert.Empty(t, view.DraftPositions)
	assert.Len(t, view.UnassignedLoads, 3)

	_, err = f.service.GetPosition(ctx, GetPositionQuery{PositionID: p.PositionID})
	requireAppCode(t, err, apperrors.CodeNotFound)

	load, err := f.service.GetLoad(ctx, GetLoadQuery{LoadID: "L2"})
	require.NoError(t, err)
	assert.Equal(t, "import", load.Direction)
}

func TestUpdatePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPosition(t, "export")

	vehicle := "TRUCK-1"
	updated, err := f.service.UpdatePosition(ctx, UpdatePositionCommand{PositionID: p.PositionID, VehicleRef: &vehicle})
	require.NoError(t, err)
	assert.Equal(t, "TRUCK-1", updated.VehicleRef)
	assert.Greater(t, updated.Version, p.Version)

	unchanged, err := f.service.UpdatePosition(ctx, UpdatePositionCommand{PositionID: p.PositionID, VehicleRef: &vehicle})
	require.NoError(t, err)
	assert.Equal(t, updated.Version, unchanged.Version)
}

func TestGetDispositionView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "E1", "export", 10, 1, 1)
	f.addLoad(t, "E2", "export", 20, 1, 1)
	f.addLoad(t, "E3", "export", 30, 1, 1)
	f.addLoad(t, "I1", "import", 40, 1, 1)

	draft := f.createPosition(t, "export")
	f.assign(t, draft.PositionID, "E1")

	active := f.createPosition(t, "export")
	f.assign(t, active.PositionID, "E2")
	_, err := f.service.ConfirmPosition(ctx, ConfirmPositionCommand{PositionID: active.PositionID})
	require.NoError(t, err)

	f.createPosition(t, "import")

	view, err := f.service.GetDispositionView(ctx, GetDispositionViewQuery{Direction: "export"})
	require.NoError(t, err)
	assert.Equal(t, "export", view.Direction)
	require.Len(t, view.DraftPositions, 1)
	assert.Equal(t, draft.PositionID, view.DraftPositions[0].PositionID)
	require.Len(t, view.ActivePositions, 1)
	assert.Equal(t, active.PositionID, view.ActivePositions[0].PositionID)

	unassigned := make([]string, 0, len(view.UnassignedLoads))
	for _, l := range view.UnassignedLoads {
		unassigned = append(unassigned, l.LoadID)
	}
	assert.ElementsMatch(t, []string{"E2", "E3"}, unassigned)

	_, err = f.service.GetDispositionView(ctx, GetDispositionViewQuery{Direction: "both"})
	requireAppCode(t, err, apperrors.CodeValidationError)
}

func TestSaveConflictMapsToConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 10, 1, 1)
	p := f.createPosition(t, "export")
	f.positions.failSave[p.PositionID] = fmt.Errorf("%w: stale", domain.ErrConcurrentModification)

	_, err := f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: p.PositionID, LoadID: "L1"})
	requireAppCode(t, err, apperrors.CodeConflict)
}

func TestInfrastructureErrorIsNotAnAppError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLoad(t, "L1", "export", 10, 1, 1)
	p := f.createPosition(t, "export")
	storageErr := errors.New("disk full")
	f.positions.failSave[p.PositionID] = storageErr

	_, err := f.service.AssignLoad(ctx, AssignLoadCommand{PositionID: p.PositionID, LoadID: "L1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)
	assert.False(t, apperrors.IsAppError(err))
	assert.Equal(t, apperrors.CodeInternalError, apperrors.FromError(err).Code)
}

func TestUpsertLoad_DirectionChangeOfHeldLoad(t *testing.T) {
	var logs bytes.Buffer
	cfg := logging.DefaultConfig("disposition-test")
	cfg.Output = &logs
	positions := memory.NewPositionRepository()
	service := NewDispositionApplicationService(positions, memory.NewLoadRepository(), locking.NewKeyedMutex(), logging.New(cfg), nil)
	ctx := context.Background()

	upsert := func(direction string) {
		_, err := service.UpsertLoad(ctx, UpsertLoadCommand{
			LoadID:    "L1",
			Direction: direction,
			Items:     []LoadItemInput{{ItemID: "L1-1", GrossWeight: 10}},
		})
		require.NoError(t, err)
	}

	upsert("export")
	p, err := service.CreatePosition(ctx, CreatePositionCommand{Type: "export"})
	require.NoError(t, err)
	_, err = service.AssignLoad(ctx, AssignLoadCommand{PositionID: p.PositionID, LoadID: "L1"})
	require.NoError(t, err)

	upsert("import")

	load, err := service.GetLoad(ctx, GetLoadQuery{LoadID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, "import", load.Direction)

	stored, err := service.GetPosition(ctx, GetPositionQuery{PositionID: p.PositionID})
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, stored.LoadIDs)
	assert.Contains(t, logs.String(), "Load direction changed while held by a draft position")
	assert.Contains(t, logs.String(), p.PositionID)
}
