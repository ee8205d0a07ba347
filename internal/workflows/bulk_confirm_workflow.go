package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/disposition-service/internal/activities"
	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/internal/domain"
	wmstemporal "github.com/wms-platform/disposition-service/pkg/temporal"
)

// ConfirmActivityTimeout bounds a single position confirmation
const ConfirmActivityTimeout = time.Minute

// BulkConfirmInput is the input of BulkConfirmWorkflow
type BulkConfirmInput struct {
	PositionIDs []string `json:"positionIds"`
}

// BulkConfirmWorkflow confirms each position in input order, one activity per
// position. Failures are collected and never undo earlier confirmations.
func BulkConfirmWorkflow(ctx workflow.Context, input BulkConfirmInput) (*application.BulkConfirmResultDTO, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting bulk confirmation", "positions", len(input.PositionIDs))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ConfirmActivityTimeout,
		RetryPolicy:         wmstemporal.DefaultRetryPolicy(),
	})

	result := application.NewBulkConfirmResult(len(input.PositionIDs))
	seen := make(map[string]bool, len(input.PositionIDs))

	for _, positionID := range input.PositionIDs {
		if seen[positionID] {
			result.AddFailed(positionID, domain.ReasonInvalidState, "position appears more than once in the batch")
			continue
		}
		seen[positionID] = true

		var position application.PositionDTO
		err := workflow.ExecuteActivity(ctx, activities.ConfirmPositionName, positionID).Get(ctx, &position)
		if err != nil {
			reason, message := failureOf(err)
			logger.Warn("Position not confirmed", "positionId", positionID, "reason", reason)
			result.AddFailed(positionID, reason, message)
			continue
		}
		result.AddConfirmed(&position)
	}

	logger.Info("Bulk confirmation completed",
		"confirmed", len(result.Confirmed),
		"failed", len(result.Errors),
	)
	return result, nil
}

// failureOf extracts the domain reason of a failed confirmation. Retryable
// failures that exhausted their attempts are reported as internal.
func failureOf(err error) (reason, message string) {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable() {
		return appErr.Type(), appErr.Message()
	}
	return domain.ReasonInternal, "an internal error occurred"
}
