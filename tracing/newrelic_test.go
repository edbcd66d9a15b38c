package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/clinops/config"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	got, txn := tracer.StartTransaction(ctx, "dispatch")
	assert.Nil(t, txn)
	assert.Equal(t, ctx, got)

	seg := tracer.StartSegment(got, "append")
	assert.Nil(t, seg)

	assert.NotPanics(t, func() {
		seg.End()
		tracer.RecordError(txn, errors.New("boom"))
		tracer.AddAttribute(txn, "k", "v")
		tracer.EndTransaction(txn)
		tracer.Close()
	})
	assert.Nil(t, tracer.Application())
}
