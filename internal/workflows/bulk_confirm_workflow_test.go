package workflows

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/wms-platform/disposition-service/internal/activities"
	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/internal/infrastructure/locking"
	"github.com/wms-platform/disposition-service/internal/infrastructure/memory"
	"github.com/wms-platform/disposition-service/pkg/logging"
)

func newService(t *testing.T) *application.DispositionApplicationService {
	t.Helper()
	cfg := logging.DefaultConfig("disposition-test")
	cfg.Output = io.Discard
	return application.NewDispositionApplicationService(
		memory.NewPositionRepository(),
		memory.NewLoadRepository(),
		locking.NewKeyedMutex(),
		logging.New(cfg),
		nil,
	)
}

func draftWithLoad(t *testing.T, service *application.DispositionApplicationService, loadID string) string {
	t.Helper()
	ctx := context.Background()

	p, err := service.CreatePosition(ctx, application.CreatePositionCommand{Type: "export"})
	require.NoError(t, err)

	if loadID != "" {
		_, err = service.UpsertLoad(ctx, application.UpsertLoadCommand{
			LoadID:    loadID,
			Direction: "export",
			Items:     []application.LoadItemInput{{ItemID: loadID + "-1", GrossWeight: 100, Volume: 1, Lademetre: 0.4}},
		})
		require.NoError(t, err)
		_, err = service.AssignLoad(ctx, application.AssignLoadCommand{PositionID: p.PositionID, LoadID: loadID})
		require.NoError(t, err)
	}
	return p.PositionID
}

func TestBulkConfirmWorkflow_PartialSuccess(t *testing.T) {
	service := newService(t)
	p1 := draftWithLoad(t, service, "L1")
	p2 := draftWithLoad(t, service, "")
	p3 := draftWithLoad(t, service, "L3")

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(activities.NewDispositionActivities(service))

	env.ExecuteWorkflow(BulkConfirmWorkflow, BulkConfirmInput{PositionIDs: []string{p1, p2, p3, p1}})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result application.BulkConfirmResultDTO
	require.NoError(t, env.GetWorkflowResult(&result))

	require.Len(t, result.Confirmed, 2)
	assert.Equal(t, p1, result.Confirmed[0].PositionID)
	assert.Equal(t, "confirmed", result.Confirmed[0].State)
	assert.Equal(t, p3, result.Confirmed[1].PositionID)

	require.Len(t, result.Errors, 2)
	assert.Equal(t, p2, result.Errors[0].PositionID)
	assert.Equal(t, domain.ReasonEmptyPosition, result.Errors[0].Reason)
	assert.Equal(t, p1, result.Errors[1].PositionID)
	assert.Equal(t, domain.ReasonInvalidState, result.Errors[1].Reason)

	require.Len(t, result.Results, 4)
	assert.Equal(t, application.BulkConfirmStatusFailed, result.Results[1].Status)
}

type failingConfirmer struct{ calls int }

func (f *failingConfirmer) ConfirmPosition(context.Context, application.ConfirmPositionCommand) (*application.PositionDTO, error) {
	f.calls++
	return nil, errors.New("mongo: server selection timeout")
}

func TestBulkConfirmWorkflow_RetriesInfrastructureFailures(t *testing.T) {
	confirmer := &failingConfirmer{}

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(
		activities.NewDispositionActivities(confirmer).ConfirmPosition,
		activity.RegisterOptions{Name: activities.ConfirmPositionName},
	)

	env.ExecuteWorkflow(BulkConfirmWorkflow, BulkConfirmInput{PositionIDs: []string{"P1"}})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result application.BulkConfirmResultDTO
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, domain.ReasonInternal, result.Errors[0].Reason)
	assert.Equal(t, "an internal error occurred", result.Errors[0].Message)
	assert.Equal(t, 3, confirmer.calls)
}

// lostCompletionConfirmer commits the first confirmation and then reports a
// transient failure, as when the worker dies before acknowledging
type lostCompletionConfirmer struct {
	next  activities.PositionConfirmer
	calls int
}

func (c *lostCompletionConfirmer) ConfirmPosition(ctx context.Context, cmd application.ConfirmPositionCommand) (*application.PositionDTO, error) {
	c.calls++
	position, err := c.next.ConfirmPosition(ctx, cmd)
	if c.calls == 1 && err == nil {
		return nil, errors.New("worker lost connection before completing the activity")
	}
	return position, err
}

func TestBulkConfirmWorkflow_RetryAfterCommittedAttempt(t *testing.T) {
	service := newService(t)
	p1 := draftWithLoad(t, service, "L1")
	confirmer := &lostCompletionConfirmer{next: service}

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(
		activities.NewDispositionActivities(confirmer).ConfirmPosition,
		activity.RegisterOptions{Name: activities.ConfirmPositionName},
	)

	env.ExecuteWorkflow(BulkConfirmWorkflow, BulkConfirmInput{PositionIDs: []string{p1}})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result application.BulkConfirmResultDTO
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 2, confirmer.calls)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Confirmed, 1)
	assert.Equal(t, "confirmed", result.Confirmed[0].State)
	assert.Equal(t, 1, result.Confirmed[0].Capacity.LoadCount)

	stored, err := service.GetPosition(context.Background(), application.GetPositionQuery{PositionID: p1})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", stored.State)
}

func TestBulkConfirmWorkflow_EmptyInput(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.ExecuteWorkflow(BulkConfirmWorkflow, BulkConfirmInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result application.BulkConfirmResultDTO
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Empty(t, result.Confirmed)
	assert.Empty(t, result.Errors)
}
