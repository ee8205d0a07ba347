package mongodb

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
)

func TestInstrumentation_NilRunsOperation(t *testing.T) {
	var inst *Instrumentation
	called := false

	err := inst.Observe(context.Background(), "positions", "find", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestInstrumentation_RecordsOutcome(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("mongo-test"))
	cfg := logging.DefaultConfig("mongo-test")
	cfg.Output = &bytes.Buffer{}
	inst := NewInstrumentation("disposition_db", m, logging.New(cfg))

	boom := errors.New("boom")
	err := inst.Observe(context.Background(), "positions", "update", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	_ = inst.Observe(context.Background(), "positions", "update", func(ctx context.Context) error { return nil })

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MongoDBOperations.WithLabelValues("mongo-test", "positions", "update", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MongoDBOperations.WithLabelValues("mongo-test", "positions", "update", "success")))
}
