package runtime

import (
	"context"
	"time"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/wordbreak"
	"github.com/rs/zerolog"
	"github.com/tochemey/goakt/v2/actors"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Response fields of a segmentation reply
const (
	FieldBoundaries = "boundaries"
	FieldError      = "error"
)

// SegmentActor is a GoAKT actor that owns a segmenter. The actor mailbox
// serializes every call into the underlying engine.
type SegmentActor struct {
	// segmenter creates and drives the iterators
	segmenter *wordbreak.Segmenter

	// encoding is used to decode every request
	encoding engine.Encoding

	logger zerolog.Logger

	// ready indicates if the actor is ready to process requests
	ready bool
}

// NewSegmentActor creates a new segmentation actor with optional configuration
func NewSegmentActor(segmenter *wordbreak.Segmenter, opts ...SegmentActorOption) *SegmentActor {
	actor := &SegmentActor{
		segmenter: segmenter,
		encoding:  engine.UTF8,
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(actor)
	}

	return actor
}

// PreStart initializes the actor before it starts receiving messages
func (a *SegmentActor) PreStart(ctx context.Context) error {
	if a.segmenter == nil {
		return ErrNilSegmenter
	}
	a.ready = true
	return nil
}

// Receive handles incoming messages
func (a *SegmentActor) Receive(ctx *actors.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *wrapperspb.BytesValue:
		a.handleSegment(ctx, msg)

	case *wrapperspb.StringValue:
		a.handleHealthCheck(ctx, msg)

	default:
		ctx.Unhandled()
	}
}

// PostStop marks the actor as stopped. The engine belongs to the caller.
func (a *SegmentActor) PostStop(ctx context.Context) error {
	a.ready = false
	return nil
}

func (a *SegmentActor) handleSegment(ctx *actors.ReceiveContext, req *wrapperspb.BytesValue) {
	start := time.Now()

	if !a.ready {
		ctx.Response(errorReply(ErrActorNotReady.Error()))
		return
	}

	boundaries, err := a.segmenter.Segment(ctx.Context(), a.encoding, req.GetValue())
	if err != nil {
		a.logger.Error().Err(err).Msg("segmentation failed")
		ctx.Response(errorReply(err.Error()))
		return
	}

	values := make([]*structpb.Value, len(boundaries))
	for i, b := range boundaries {
		values[i] = structpb.NewNumberValue(float64(b))
	}

	a.logger.Debug().
		Int("bytes", len(req.GetValue())).
		Int("boundaries", len(boundaries)).
		Dur("took", time.Since(start)).
		Msg("segmented")

	ctx.Response(&structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldBoundaries: structpb.NewListValue(&structpb.ListValue{Values: values}),
		},
	})
}

// handleHealthCheck echoes the ping while the actor is ready
func (a *SegmentActor) handleHealthCheck(ctx *actors.ReceiveContext, req *wrapperspb.StringValue) {
	if !a.ready {
		ctx.Response(wrapperspb.String(""))
		return
	}
	ctx.Response(wrapperspb.String(req.GetValue()))
}

func errorReply(msg string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldError: structpb.NewStringValue(msg),
		},
	}
}

// Ensure SegmentActor implements actors.Actor
var _ actors.Actor = (*SegmentActor)(nil)
