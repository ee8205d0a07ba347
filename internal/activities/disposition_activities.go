package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/errors"
)

// ConfirmPositionName is the registered name of DispositionActivities.ConfirmPosition
const ConfirmPositionName = "ConfirmPosition"

// PositionConfirmer confirms a single position
type PositionConfirmer interface {
	ConfirmPosition(ctx context.Context, cmd application.ConfirmPositionCommand) (*application.PositionDTO, error)
}

// DispositionActivities contains activities backing disposition workflows
type DispositionActivities struct {
	service PositionConfirmer
}

// NewDispositionActivities creates a new DispositionActivities instance
func NewDispositionActivities(service PositionConfirmer) *DispositionActivities {
	return &DispositionActivities{service: service}
}

// ConfirmPosition confirms one position. Rejected preconditions fail with a
// non-retryable application error whose type is the domain reason.
func (a *DispositionActivities) ConfirmPosition(ctx context.Context, positionID string) (*application.PositionDTO, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Confirming position", "positionId", positionID)

	execution := activity.GetInfo(ctx).WorkflowExecution
	ctx = cloudevents.ContextWithWorkflowID(ctx, execution.ID)

	// a retry after a lost completion finds the position confirmed by this run
	position, err := a.service.ConfirmPosition(ctx, application.ConfirmPositionCommand{
		PositionID:  positionID,
		OperationID: execution.ID + "/" + execution.RunID,
	})
	if err == nil {
		logger.Info("Position confirmed", "positionId", positionID, "loadCount", position.Capacity.LoadCount)
		return position, nil
	}

	if domain.IsBusinessError(err) {
		message := err.Error()
		if appErr, ok := errors.AsAppError(err); ok {
			message = appErr.Message
		}
		logger.Warn("Position rejected confirmation", "positionId", positionID, "reason", domain.Reason(err), "error", message)
		return nil, temporal.NewNonRetryableApplicationError(message, domain.Reason(err), nil)
	}

	logger.Error("Failed to confirm position", "positionId", positionID, "error", err)
	return nil, temporal.NewApplicationErrorWithCause("failed to confirm position", domain.Reason(err), err)
}
