package application

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/tracing"
)

var tracer = otel.Tracer("disposition-application")

// BulkConfirmPositions attempts to confirm every listed position, in input
// order, each through the same locked path as ConfirmPosition. A failure is
// recorded and the batch continues; confirmed positions are never rolled
// back. The batch ignores cancellation of ctx so a client that gives up does
// not leave it half attempted.
func (s *DispositionApplicationService) BulkConfirmPositions(ctx context.Context, cmd BulkConfirmPositionsCommand) *BulkConfirmResultDTO {
	ctx = context.WithoutCancel(ctx)
	result := NewBulkConfirmResult(len(cmd.PositionIDs))
	seen := make(map[string]bool, len(cmd.PositionIDs))

	s.metrics.ObserveBulkConfirmBatch(len(cmd.PositionIDs))

	for _, positionID := range cmd.PositionIDs {
		if seen[positionID] {
			result.AddFailed(positionID, domain.ReasonInvalidState, "position appears more than once in the batch")
			continue
		}
		seen[positionID] = true

		position, err := tracing.TracedOperation(ctx, tracer, "disposition.bulk_confirm.item", func(ctx context.Context) (*PositionDTO, error) {
			return s.confirm(ctx, positionID, "")
		}, attribute.String("position.id", positionID))
		if err != nil {
			result.AddFailed(positionID, domain.Reason(err), FailureMessage(err))
			continue
		}
		result.AddConfirmed(position)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "position.bulk_confirmed",
		EntityType: "position",
		Action:     "bulk_confirmed",
		Data: map[string]any{
			"requested": len(cmd.PositionIDs),
			"confirmed": len(result.Confirmed),
			"failed":    len(result.Errors),
		},
	})

	return result
}

// FailureMessage returns the caller-facing message for a failed item.
// Infrastructure details are not exposed.
func FailureMessage(err error) string {
	if domain.Reason(err) == domain.ReasonInternal {
		return "an internal error occurred"
	}
	return err.Error()
}
