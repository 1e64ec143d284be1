package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/okra-platform/breakiter/internal/engine"

// InstrumentOption configures Instrument
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	meter  metric.Meter
	tracer trace.Tracer
	logger zerolog.Logger
	name   string
}

// WithMeter sets the meter used for cursor counters
func WithMeter(meter metric.Meter) InstrumentOption {
	return func(c *instrumentConfig) {
		c.meter = meter
	}
}

// WithTracer sets the tracer used for cursor lifecycle spans
func WithTracer(tracer trace.Tracer) InstrumentOption {
	return func(c *instrumentConfig) {
		c.tracer = tracer
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(logger zerolog.Logger) InstrumentOption {
	return func(c *instrumentConfig) {
		c.logger = logger
	}
}

// WithEngineName sets the engine attribute recorded on every measurement
func WithEngineName(name string) InstrumentOption {
	return func(c *instrumentConfig) {
		c.name = name
	}
}

// Instrument wraps e so that cursor lifecycle events are counted, traced and
// logged. The wrapped engine behaves exactly like e.
func Instrument(e Engine, opts ...InstrumentOption) (Engine, error) {
	cfg := instrumentConfig{
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		logger: zerolog.Nop(),
		name:   "unknown",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	created, err := cfg.meter.Int64Counter("breakiter.cursors.created",
		metric.WithDescription("Number of cursors created"))
	if err != nil {
		return nil, err
	}
	destroyed, err := cfg.meter.Int64Counter("breakiter.cursors.destroyed",
		metric.WithDescription("Number of cursors destroyed"))
	if err != nil {
		return nil, err
	}
	advanced, err := cfg.meter.Int64Counter("breakiter.cursors.advanced",
		metric.WithDescription("Number of cursor advance calls"))
	if err != nil {
		return nil, err
	}
	live, err := cfg.meter.Int64UpDownCounter("breakiter.cursors.live",
		metric.WithDescription("Number of cursors currently alive"))
	if err != nil {
		return nil, err
	}

	return &instrumentedEngine{
		next:      e,
		tracer:    cfg.tracer,
		logger:    cfg.logger.With().Str("component", "engine").Str("engine", cfg.name).Logger(),
		attrs:     metric.WithAttributes(attribute.String("engine", cfg.name)),
		created:   created,
		destroyed: destroyed,
		advanced:  advanced,
		live:      live,
	}, nil
}

type instrumentedEngine struct {
	next   Engine
	tracer trace.Tracer
	logger zerolog.Logger
	attrs  metric.MeasurementOption

	created   metric.Int64Counter
	destroyed metric.Int64Counter
	advanced  metric.Int64Counter
	live      metric.Int64UpDownCounter
}

func (e *instrumentedEngine) NewBuffer(ctx context.Context, enc Encoding, data []byte) (Buffer, error) {
	buf, err := e.next.NewBuffer(ctx, enc, data)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Stringer("encoding", enc).
		Int("units", buf.Len()).
		Msg("buffer created")
	return buf, nil
}

func (e *instrumentedEngine) CreateCursor(ctx context.Context, buf Buffer) (CursorID, error) {
	ctx, span := e.tracer.Start(ctx, "breakiter.CreateCursor")
	defer span.End()

	id, err := e.next.CreateCursor(ctx, buf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Stringer("cursor", id))
	e.created.Add(ctx, 1, e.attrs)
	e.live.Add(ctx, 1, e.attrs)
	e.logger.Debug().Stringer("cursor", id).Msg("cursor created")

	return id, nil
}

func (e *instrumentedEngine) AdvanceCursor(ctx context.Context, id CursorID) (int32, error) {
	e.advanced.Add(ctx, 1, e.attrs)
	return e.next.AdvanceCursor(ctx, id)
}

func (e *instrumentedEngine) DestroyCursor(ctx context.Context, id CursorID) error {
	ctx, span := e.tracer.Start(ctx, "breakiter.DestroyCursor",
		trace.WithAttributes(attribute.Stringer("cursor", id)))
	defer span.End()

	if err := e.next.DestroyCursor(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrStaleCursor) {
			e.logger.Warn().Stringer("cursor", id).Msg("destroy of stale cursor")
		}
		return err
	}

	e.destroyed.Add(ctx, 1, e.attrs)
	e.live.Add(ctx, -1, e.attrs)
	e.logger.Debug().Stringer("cursor", id).Msg("cursor destroyed")

	return nil
}

func (e *instrumentedEngine) LiveCursors() int {
	return e.next.LiveCursors()
}

func (e *instrumentedEngine) Close(ctx context.Context) error {
	if n := e.next.LiveCursors(); n > 0 {
		e.live.Add(ctx, int64(-n), e.attrs)
	}
	return e.next.Close(ctx)
}
