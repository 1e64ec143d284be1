package engine

import (
	"context"
	"fmt"
	"strings"
)

// End is the boundary value returned once a cursor has no more boundaries.
// Real boundaries are non-negative code unit offsets, so End never collides
// with one.
const End int32 = -1

// Encoding identifies how the bytes of a buffer are to be decoded.
type Encoding uint32

const (
	// UTF8 text; ill-formed sequences decode to U+FFFD one byte at a time.
	UTF8 Encoding = iota
	// UTF16 text as little-endian code units, two bytes each.
	UTF16
	// Latin1 is ISO-8859-1, one byte per code point.
	Latin1
)

// String returns the canonical name of the encoding
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf8"
	case UTF16:
		return "utf16"
	case Latin1:
		return "latin1"
	default:
		return fmt.Sprintf("encoding(%d)", uint32(e))
	}
}

// UnitSize returns the number of bytes in one code unit of the encoding
func (e Encoding) UnitSize() int {
	if e == UTF16 {
		return 2
	}
	return 1
}

// ParseEncoding parses an encoding name such as "utf-8" or "latin1"
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf8", "utf-8":
		return UTF8, nil
	case "utf16", "utf-16", "utf-16le", "utf16le":
		return UTF16, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return Latin1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// CursorID names a cursor inside an engine. The low 32 bits are the slot
// index and the high 32 bits the slot generation, so an id that outlived its
// cursor never resolves to a cursor created later in the same slot.
type CursorID uint64

func newCursorID(index, generation uint32) CursorID {
	return CursorID(uint64(generation)<<32 | uint64(index))
}

// Index returns the slot index
func (id CursorID) Index() uint32 {
	return uint32(id)
}

// Generation returns the slot generation. Valid ids never have generation 0.
func (id CursorID) Generation() uint32 {
	return uint32(id >> 32)
}

// Valid reports whether the id could have been issued by an Arena
func (id CursorID) Valid() bool {
	return id.Generation() != 0
}

func (id CursorID) String() string {
	return fmt.Sprintf("cursor(%d@%d)", id.Index(), id.Generation())
}

// Buffer is text handed to an engine. Cursors read from it, so it must stay
// alive for as long as any cursor created over it.
type Buffer interface {
	// Encoding returns the encoding the buffer was created with
	Encoding() Encoding

	// Len returns the buffer length in code units
	Len() int
}

// Engine owns cursor state. Callers only ever see CursorIDs.
type Engine interface {
	// NewBuffer copies data into an engine-owned buffer
	NewBuffer(ctx context.Context, enc Encoding, data []byte) (Buffer, error)

	// CreateCursor starts a word break iteration over buf
	CreateCursor(ctx context.Context, buf Buffer) (CursorID, error)

	// AdvanceCursor moves the cursor one boundary forward and returns it,
	// or End when the text is exhausted.
	AdvanceCursor(ctx context.Context, id CursorID) (int32, error)

	// DestroyCursor frees the cursor. Callers must call it at most once per
	// id; a second call reports ErrStaleCursor.
	DestroyCursor(ctx context.Context, id CursorID) error

	// LiveCursors returns the number of cursors not yet destroyed
	LiveCursors() int

	// Close releases the engine. Cursors still alive are destroyed and
	// every later call fails with ErrEngineClosed.
	Close(ctx context.Context) error
}
