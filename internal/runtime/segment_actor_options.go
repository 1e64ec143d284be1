package runtime

import (
	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/rs/zerolog"
)

// SegmentActorOption is a functional option for configuring a SegmentActor
type SegmentActorOption func(*SegmentActor)

// WithEncoding sets the encoding requests are decoded with
func WithEncoding(enc engine.Encoding) SegmentActorOption {
	return func(a *SegmentActor) {
		a.encoding = enc
	}
}

// WithActorLogger sets the actor logger
func WithActorLogger(logger zerolog.Logger) SegmentActorOption {
	return func(a *SegmentActor) {
		a.logger = logger.With().Str("component", "segment-actor").Logger()
	}
}
