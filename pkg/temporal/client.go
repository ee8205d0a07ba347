// Package temporal connects disposition binaries to Temporal.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	"github.com/wms-platform/disposition-service/pkg/logging"
)

type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "disposition-worker",
	}
}

// TaskQueues used by the disposition worker
var TaskQueues = struct {
	Disposition string
}{
	Disposition: "disposition-queue",
}

// WorkflowNames registered by the disposition worker
var WorkflowNames = struct {
	BulkConfirm string
}{
	BulkConfirm: "BulkConfirmWorkflow",
}

// Client is the Temporal SDK client with disposition defaults applied
type Client struct {
	client.Client
}

// NewClient dials the frontend; SDK logs go through logger when it is non-nil
func NewClient(ctx context.Context, config *Config, logger *logging.Logger) (*Client, error) {
	opts := client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	}
	if logger != nil {
		opts.Logger = log.NewStructuredLogger(logger.WithComponent("temporal").Logger)
	}

	c, err := client.DialContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial Temporal at %s: %w", config.HostPort, err)
	}
	return &Client{Client: c}, nil
}

// StartWorkflow starts workflowName under a caller-chosen id; executions are capped at an hour
func (c *Client) StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...any) (client.WorkflowRun, error) {
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                taskQueue,
		WorkflowExecutionTimeout: time.Hour,
	}, workflowName, args...)
}

// WorkerOptions sizes a worker's pollers and execution slots
type WorkerOptions struct {
	TaskQueue         string
	ActivityPollers   int
	WorkflowPollers   int
	ActivitySlots     int
	WorkflowTaskSlots int
}

func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{
		TaskQueue:         taskQueue,
		ActivityPollers:   4,
		WorkflowPollers:   2,
		ActivitySlots:     20,
		WorkflowTaskSlots: 20,
	}
}

func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.Client, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityTaskPollers:       opts.ActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       opts.WorkflowPollers,
		MaxConcurrentActivityExecutionSize:     opts.ActivitySlots,
		MaxConcurrentWorkflowTaskExecutionSize: opts.WorkflowTaskSlots,
	})
}

// DefaultRetryPolicy applies to infrastructure failures of disposition
// activities; business rejections are non-retryable and never reach it.
func DefaultRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
	}
}
