package engine

import "errors"

var (
	// Cursor errors
	ErrStaleCursor = errors.New("cursor id is stale or was never issued")

	// Engine errors
	ErrEngineClosed    = errors.New("engine is closed")
	ErrForeignBuffer   = errors.New("buffer was not created by this engine")
	ErrUnknownEncoding = errors.New("unknown encoding")
)
