package runtime

import (
	"context"
)

// Runtime serves segmentation requests through an actor system
type Runtime interface {
	// Start initializes the runtime and spawns the segment actor
	Start(ctx context.Context) error

	// Segment returns the word boundaries of data
	Segment(ctx context.Context, data []byte) ([]int32, error)

	// Ping checks that the segment actor answers
	Ping(ctx context.Context) error

	// Shutdown stops the actor and the actor system
	Shutdown(ctx context.Context) error
}
