// Package handle implements the caller-facing proxy for a cursor owned by an
// engine.
//
// An Iterator wraps one engine.CursorID. It never touches engine memory; it
// only forwards advance and destroy calls. Owning iterators destroy their
// cursor exactly once, either when Release is called or, failing that, after
// the iterator becomes unreachable. Lifetime edges are references the
// iterator keeps only so that the resources behind them (the text buffer, a
// parent iterator) cannot be reclaimed while the iterator is still in use.
//
// An Iterator is not safe for concurrent use. Distinct iterators over the
// same immutable buffer may be advanced from different goroutines.
package handle

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/rs/zerolog/log"
)

// ErrUseAfterRelease is returned by Next once the iterator, or the cursor
// behind it, has been released. It is never reported as engine.End.
var ErrUseAfterRelease = errors.New("iterator used after release")

// Engine is the part of engine.Engine an iterator drives
type Engine interface {
	AdvanceCursor(ctx context.Context, id engine.CursorID) (int32, error)
	DestroyCursor(ctx context.Context, id engine.CursorID) error
}

// Iterator is a single-pass, forward-only word break iterator. The type
// parameter only tags the text encoding, so iterators over differently
// encoded buffers are distinct types with the same shape.
type Iterator[E any] struct {
	release  *releaseRecord
	owning   bool
	edges    []any
	cleanup  runtime.Cleanup
	released atomic.Bool
}

// releaseRecord is everything automatic cleanup needs. It must never point
// back at the Iterator or the iterator would stay reachable forever.
type releaseRecord struct {
	engine    Engine
	id        engine.CursorID
	destroyed atomic.Bool
}

// destroy calls DestroyCursor the first time it is invoked and reports
// whether it did.
func (r *releaseRecord) destroy(ctx context.Context) (bool, error) {
	if !r.destroyed.CompareAndSwap(false, true) {
		return false, nil
	}
	return true, r.engine.DestroyCursor(ctx, r.id)
}

func cleanupCursor(r *releaseRecord) {
	destroyed, err := r.destroy(context.Background())
	if !destroyed {
		return
	}

	switch {
	case err == nil:
		log.Debug().Stringer("cursor", r.id).Msg("cursor released by cleanup")
	case errors.Is(err, engine.ErrEngineClosed):
		// The engine already destroyed every cursor when it closed
	default:
		log.Warn().Err(err).Stringer("cursor", r.id).Msg("failed to release cursor during cleanup")
	}
}

// New wraps a cursor id handed out by eng. If owning is true the iterator is
// responsible for destroying the cursor and registers automatic cleanup for
// the case where Release is never called. Every edge is retained for as long
// as the iterator is reachable.
func New[E any](eng Engine, id engine.CursorID, owning bool, edges ...any) *Iterator[E] {
	it := &Iterator[E]{
		release: &releaseRecord{engine: eng, id: id},
		owning:  owning,
		edges:   append([]any(nil), edges...),
	}

	if owning {
		it.cleanup = runtime.AddCleanup(it, cleanupCursor, it.release)
	}

	return it
}

// Next advances the cursor and returns the next boundary, or engine.End once
// the sequence is exhausted. Calling Next after End keeps returning End.
func (it *Iterator[E]) Next(ctx context.Context) (int32, error) {
	if it.released.Load() {
		return 0, fmt.Errorf("%w: %s", ErrUseAfterRelease, it.release.id)
	}

	v, err := it.release.engine.AdvanceCursor(ctx, it.release.id)

	// The iterator, and with it every edge, must stay reachable until the
	// engine call has returned so cleanup cannot race an in-flight advance.
	runtime.KeepAlive(it)

	if err != nil {
		// A closed engine has already destroyed every cursor it owned
		if errors.Is(err, engine.ErrStaleCursor) || errors.Is(err, engine.ErrEngineClosed) {
			return 0, fmt.Errorf("%w: %w", ErrUseAfterRelease, err)
		}
		return 0, err
	}
	return v, nil
}

// Release gives up the cursor. Owning iterators destroy it; non-owning ones
// only drop their reference. Releasing twice is a no-op.
func (it *Iterator[E]) Release(ctx context.Context) error {
	if it.released.Swap(true) {
		return nil
	}

	if !it.owning {
		it.edges = nil
		return nil
	}

	// Edges are dropped only after the cursor that reads them is gone
	edges := it.edges
	it.cleanup.Stop()
	_, err := it.release.destroy(ctx)
	runtime.KeepAlive(edges)
	it.edges = nil

	if err != nil {
		return fmt.Errorf("failed to destroy %s: %w", it.release.id, err)
	}
	return nil
}

// View returns a non-owning iterator over the same cursor. The view keeps
// it alive, so the cursor is not cleaned up while the view is reachable.
// Advancing either one moves the shared cursor.
func (it *Iterator[E]) View() *Iterator[E] {
	return New[E](it.release.engine, it.release.id, false, it)
}

// ID returns the wrapped cursor id
func (it *Iterator[E]) ID() engine.CursorID {
	return it.release.id
}

// Owning reports whether the iterator destroys its cursor
func (it *Iterator[E]) Owning() bool {
	return it.owning
}

// Released reports whether Release has been called
func (it *Iterator[E]) Released() bool {
	return it.released.Load()
}

// Edges returns a copy of the resources kept alive by the iterator
func (it *Iterator[E]) Edges() []any {
	return slices.Clone(it.edges)
}
