package runtime

import "errors"

var (
	// Actor errors
	ErrNilSegmenter  = errors.New("segmenter cannot be nil")
	ErrActorNotReady = errors.New("actor not ready")

	// Runtime errors
	ErrNotStarted      = errors.New("runtime not started")
	ErrAlreadyStarted  = errors.New("runtime already started")
	ErrUnexpectedReply = errors.New("unexpected reply from segment actor")
	ErrSegmentFailed   = errors.New("segmentation failed")
)
