package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestInstrument_PassesThrough(t *testing.T) {
	// Test plan:
	// - Wrap a mock engine with noop telemetry
	// - Verify every call is forwarded with the same arguments and results

	ctx := context.Background()
	mockEngine := &testutil.MockEngine{}
	buf := &testutil.SequenceBuffer{Units: 5}
	id := engine.CursorID(1<<32 | 4)

	mockEngine.On("NewBuffer", mock.Anything, engine.Latin1, []byte("hello")).Return(buf, nil)
	mockEngine.On("CreateCursor", mock.Anything, buf).Return(id, nil)
	mockEngine.On("AdvanceCursor", mock.Anything, id).Return(int32(5), nil).Once()
	mockEngine.On("AdvanceCursor", mock.Anything, id).Return(engine.End, nil).Once()
	mockEngine.On("DestroyCursor", mock.Anything, id).Return(nil)
	mockEngine.On("LiveCursors").Return(0)
	mockEngine.On("Close", mock.Anything).Return(nil)

	wrapped, err := engine.Instrument(mockEngine,
		engine.WithMeter(metricnoop.NewMeterProvider().Meter("test")),
		engine.WithTracer(tracenoop.NewTracerProvider().Tracer("test")),
		engine.WithLogger(zerolog.Nop()),
		engine.WithEngineName("mock"),
	)
	require.NoError(t, err)

	gotBuf, err := wrapped.NewBuffer(ctx, engine.Latin1, []byte("hello"))
	require.NoError(t, err)
	assert.Same(t, buf, gotBuf)

	gotID, err := wrapped.CreateCursor(ctx, gotBuf)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	v, err := wrapped.AdvanceCursor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)

	v, err = wrapped.AdvanceCursor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.End, v)

	require.NoError(t, wrapped.DestroyCursor(ctx, id))
	assert.Equal(t, 0, wrapped.LiveCursors())
	require.NoError(t, wrapped.Close(ctx))

	mockEngine.AssertExpectations(t)
}

func TestInstrument_PropagatesErrors(t *testing.T) {
	// Test plan:
	// - Make the wrapped engine fail create and destroy
	// - Verify the original errors come back unchanged

	ctx := context.Background()
	mockEngine := &testutil.MockEngine{}
	buf := &testutil.SequenceBuffer{}
	createErr := errors.New("boom")

	mockEngine.On("CreateCursor", mock.Anything, buf).Return(engine.CursorID(0), createErr)
	mockEngine.On("DestroyCursor", mock.Anything, engine.CursorID(7)).Return(engine.ErrStaleCursor)

	wrapped, err := engine.Instrument(mockEngine)
	require.NoError(t, err)

	_, err = wrapped.CreateCursor(ctx, buf)
	assert.ErrorIs(t, err, createErr)

	err = wrapped.DestroyCursor(ctx, engine.CursorID(7))
	assert.ErrorIs(t, err, engine.ErrStaleCursor)

	mockEngine.AssertExpectations(t)
}
