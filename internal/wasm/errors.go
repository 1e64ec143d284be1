package wasm

import "errors"

var (
	// Guest errors
	ErrGuestRejected    = errors.New("guest refused to create a cursor")
	ErrGuestOutOfMemory = errors.New("guest is out of memory")

	// Buffer errors
	ErrInvalidBuffer = errors.New("invalid buffer")
)
