package workflows

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"

	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/pkg/errors"
	"github.com/wms-platform/disposition-service/pkg/metrics"
	wmstemporal "github.com/wms-platform/disposition-service/pkg/temporal"
)

// BulkConfirmClient starts BulkConfirmWorkflow executions and reads their
// results
type BulkConfirmClient struct {
	client  *wmstemporal.Client
	metrics *metrics.Metrics
}

func NewBulkConfirmClient(client *wmstemporal.Client, m *metrics.Metrics) *BulkConfirmClient {
	return &BulkConfirmClient{client: client, metrics: m}
}

// Start launches a bulk confirmation and returns its workflow ID
func (c *BulkConfirmClient) Start(ctx context.Context, positionIDs []string) (string, error) {
	workflowID := "bulk-confirm-" + uuid.New().String()

	_, err := c.client.StartWorkflow(ctx, workflowID,
		wmstemporal.TaskQueues.Disposition,
		wmstemporal.WorkflowNames.BulkConfirm,
		BulkConfirmInput{PositionIDs: positionIDs},
	)
	if err != nil {
		return "", fmt.Errorf("failed to start bulk confirmation: %w", err)
	}
	c.metrics.RecordWorkflowStarted(wmstemporal.WorkflowNames.BulkConfirm)
	c.metrics.ObserveBulkConfirmBatch(len(positionIDs))
	return workflowID, nil
}

// Result returns the result of a finished execution. running is true while
// the workflow has not completed yet.
func (c *BulkConfirmClient) Result(ctx context.Context, workflowID string) (result *application.BulkConfirmResultDTO, running bool, err error) {
	desc, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if stderrors.As(err, &notFound) {
			return nil, false, errors.ErrNotFoundWithID("bulk confirmation", workflowID)
		}
		return nil, false, fmt.Errorf("failed to describe bulk confirmation: %w", err)
	}

	if desc.GetWorkflowExecutionInfo().GetStatus() == enums.WORKFLOW_EXECUTION_STATUS_RUNNING {
		return nil, true, nil
	}

	result = &application.BulkConfirmResultDTO{}
	if err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, result); err != nil {
		return nil, false, fmt.Errorf("bulk confirmation %s did not complete: %w", workflowID, err)
	}
	return result, false, nil
}
