// Package segmenter is the in-process word break engine. It implements
// engine.Engine on top of the UAX #29 word boundary rules from rivo/uniseg
// and keeps its cursors in a generation-checked arena.
package segmenter

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/rivo/uniseg"
	"github.com/rs/zerolog"
)

// Engine is the native word break engine
type Engine struct {
	cursors *engine.Arena[*cursor]
	closed  atomic.Bool
	logger  zerolog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a native engine
func New(opts ...Option) *Engine {
	e := &Engine{
		cursors: engine.NewArena[*cursor](),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "segmenter").Logger()
	return e
}

// cursor walks the word segments of one buffer. It is only ever touched by
// the goroutine driving the handle that owns it.
type cursor struct {
	buf     *buffer
	rest    string
	pos     int
	state   int
	started bool
	done    bool
}

func (c *cursor) advance() int32 {
	if c.done {
		return engine.End
	}

	// The start of non-empty text is a boundary
	if !c.started {
		c.started = true
		if len(c.rest) == 0 {
			c.done = true
			return engine.End
		}
		return 0
	}

	if len(c.rest) == 0 {
		c.done = true
		return engine.End
	}

	word, rest, state := uniseg.FirstWordInString(c.rest, c.state)
	c.pos += len(word)
	c.rest = rest
	c.state = state

	return c.buf.offsets[c.pos]
}

// NewBuffer decodes data into a buffer owned by this engine
func (e *Engine) NewBuffer(ctx context.Context, enc engine.Encoding, data []byte) (engine.Buffer, error) {
	if e.closed.Load() {
		return nil, engine.ErrEngineClosed
	}
	return decode(e, enc, data)
}

// CreateCursor starts iterating over buf
func (e *Engine) CreateCursor(ctx context.Context, buf engine.Buffer) (engine.CursorID, error) {
	if e.closed.Load() {
		return 0, engine.ErrEngineClosed
	}

	b, ok := buf.(*buffer)
	if !ok || b.owner != e {
		return 0, fmt.Errorf("%w: %T", engine.ErrForeignBuffer, buf)
	}

	return e.cursors.Insert(&cursor{
		buf:   b,
		rest:  b.text,
		state: -1,
	}), nil
}

// AdvanceCursor returns the next boundary of the cursor, or engine.End
func (e *Engine) AdvanceCursor(ctx context.Context, id engine.CursorID) (int32, error) {
	if e.closed.Load() {
		return 0, engine.ErrEngineClosed
	}

	c, err := e.cursors.Get(id)
	if err != nil {
		return 0, err
	}
	return c.advance(), nil
}

// DestroyCursor frees the cursor
func (e *Engine) DestroyCursor(ctx context.Context, id engine.CursorID) error {
	if e.closed.Load() {
		return engine.ErrEngineClosed
	}

	_, err := e.cursors.Remove(id)
	return err
}

// LiveCursors returns the number of cursors not yet destroyed
func (e *Engine) LiveCursors() int {
	return e.cursors.Len()
}

// Close destroys any remaining cursors. Closing twice is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}

	if leaked := e.cursors.Drain(); len(leaked) > 0 {
		e.logger.Warn().
			Int("cursors", len(leaked)).
			Msg("engine closed with live cursors")
	}
	return nil
}

// Ensure Engine implements engine.Engine
var _ engine.Engine = (*Engine)(nil)
