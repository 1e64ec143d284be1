package wasm

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/handle"
	"github.com/okra-platform/breakiter/internal/segmenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEncoding struct{}

func createTestEngine(t *testing.T, ctx context.Context) (*WASMEngine, *fakeGuest) {
	t.Helper()

	guest := newFakeGuest()
	e, err := NewWASMEngine(ctx, guestWASM, WithHostModule(guest.register))
	require.NoError(t, err, "engine creation should succeed")
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	return e, guest
}

func advanceAll(t *testing.T, ctx context.Context, e *WASMEngine, id engine.CursorID) []int32 {
	t.Helper()

	var out []int32
	for {
		v, err := e.AdvanceCursor(ctx, id)
		require.NoError(t, err)
		if v == engine.End {
			return out
		}
		out = append(out, v)
	}
}

func TestNewWASMEngine_Errors(t *testing.T) {
	// Test plan:
	// - Empty bytes, invalid bytes and missing exports are rejected

	ctx := context.Background()

	_, err := NewWASMEngine(ctx, nil)
	assert.Error(t, err)

	_, err = NewWASMEngine(ctx, []byte("not wasm"))
	assert.Error(t, err)

	guest := newFakeGuest()
	_, err = NewWASMEngine(ctx, guestWASM,
		WithHostModule(guest.register),
		WithExports(Exports{Next: "missing_next"}),
	)
	assert.ErrorContains(t, err, "missing_next function not found")
}

func TestWASMEngine_Segment(t *testing.T) {
	// Test plan:
	// - Copy text into guest memory and iterate a guest cursor
	// - Verify boundaries, sticky End, and that destroy frees the buffer
	//   once the buffer is unreachable

	ctx := context.Background()
	e, guest := createTestEngine(t, ctx)

	func() {
		buf, err := e.NewBuffer(ctx, engine.UTF8, []byte("hello wasm world"))
		require.NoError(t, err)
		assert.Equal(t, 16, buf.Len())

		id, err := e.CreateCursor(ctx, buf)
		require.NoError(t, err)
		assert.Equal(t, 1, e.LiveCursors())

		assert.Equal(t, []int32{0, 5, 6, 10, 11, 16}, advanceAll(t, ctx, e, id))

		v, err := e.AdvanceCursor(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, engine.End, v)

		require.NoError(t, e.DestroyCursor(ctx, id))
		assert.Equal(t, 0, e.LiveCursors())
		assert.Equal(t, 1, guest.destroyCount())

		err = e.DestroyCursor(ctx, id)
		assert.ErrorIs(t, err, engine.ErrStaleCursor)
		assert.Equal(t, 1, guest.destroyCount(), "stale destroy never reaches the guest")
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return guest.liveAllocs() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWASMEngine_Encodings(t *testing.T) {
	ctx := context.Background()
	e, _ := createTestEngine(t, ctx)

	buf, err := e.NewBuffer(ctx, engine.UTF16, []byte{'o', 0, 'k', 0, ' ', 0, 'a', 0})
	require.NoError(t, err)
	assert.Equal(t, 4, buf.Len())
	id, err := e.CreateCursor(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2, 3, 4}, advanceAll(t, ctx, e, id))
	require.NoError(t, e.DestroyCursor(ctx, id))

	buf, err = e.NewBuffer(ctx, engine.Latin1, []byte{0xE9, 't', 0xE9})
	require.NoError(t, err)
	id, err = e.CreateCursor(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 3}, advanceAll(t, ctx, e, id))
	require.NoError(t, e.DestroyCursor(ctx, id))

	buf, err = e.NewBuffer(ctx, engine.UTF8, nil)
	require.NoError(t, err)
	id, err = e.CreateCursor(ctx, buf)
	require.NoError(t, err)
	assert.Empty(t, advanceAll(t, ctx, e, id))
	require.NoError(t, e.DestroyCursor(ctx, id))

	_, err = e.NewBuffer(ctx, engine.UTF16, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	_, err = e.NewBuffer(ctx, engine.Encoding(7), []byte("x"))
	assert.ErrorIs(t, err, engine.ErrUnknownEncoding)
}

func TestWASMEngine_ReusedGuestHandles(t *testing.T) {
	// Test plan:
	// - Destroy a cursor so the guest reuses its handle for the next cursor
	// - Verify the old id cannot reach the new guest cursor

	ctx := context.Background()
	e, guest := createTestEngine(t, ctx)

	buf, err := e.NewBuffer(ctx, engine.UTF8, []byte("a b"))
	require.NoError(t, err)

	first, err := e.CreateCursor(ctx, buf)
	require.NoError(t, err)
	require.NoError(t, e.DestroyCursor(ctx, first))

	second, err := e.CreateCursor(ctx, buf)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, guest.liveHandles())

	_, err = e.AdvanceCursor(ctx, first)
	assert.ErrorIs(t, err, engine.ErrStaleCursor)

	v, err := e.AdvanceCursor(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int32(0), v, "second cursor starts from the beginning")

	require.NoError(t, e.DestroyCursor(ctx, second))
}

func TestWASMEngine_BufferOutlivesCursors(t *testing.T) {
	// Test plan:
	// - Create two cursors over one buffer and drop the buffer
	// - Verify guest memory survives until the last cursor is destroyed

	ctx := context.Background()
	e, guest := createTestEngine(t, ctx)

	ids := func() []engine.CursorID {
		buf, err := e.NewBuffer(ctx, engine.UTF8, []byte("shared text"))
		require.NoError(t, err)
		a, err := e.CreateCursor(ctx, buf)
		require.NoError(t, err)
		b, err := e.CreateCursor(ctx, buf)
		require.NoError(t, err)
		return []engine.CursorID{a, b}
	}()

	for range 5 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, guest.liveAllocs(), "buffer must stay while cursors read it")

	require.NoError(t, e.DestroyCursor(ctx, ids[0]))
	assert.Equal(t, 1, guest.liveAllocs())

	assert.Equal(t, []int32{0, 6, 7, 11}, advanceAll(t, ctx, e, ids[1]))

	require.NoError(t, e.DestroyCursor(ctx, ids[1]))
	require.Eventually(t, func() bool {
		runtime.GC()
		return guest.liveAllocs() == 0
	}, 5*time.Second, 10*time.Millisecond, "last cursor frees the orphaned buffer")
}

func TestWASMEngine_GuestRejects(t *testing.T) {
	ctx := context.Background()
	e, guest := createTestEngine(t, ctx)
	guest.rejectAt = 1

	buf, err := e.NewBuffer(ctx, engine.UTF8, []byte("x"))
	require.NoError(t, err)

	_, err = e.CreateCursor(ctx, buf)
	assert.ErrorIs(t, err, ErrGuestRejected)
	assert.Equal(t, 0, e.LiveCursors())
}

func TestWASMEngine_ForeignBuffer(t *testing.T) {
	ctx := context.Background()
	e, _ := createTestEngine(t, ctx)
	other, _ := createTestEngine(t, ctx)

	buf, err := other.NewBuffer(ctx, engine.UTF8, []byte("x"))
	require.NoError(t, err)
	_, err = e.CreateCursor(ctx, buf)
	assert.ErrorIs(t, err, engine.ErrForeignBuffer)

	native, err := segmenter.New().NewBuffer(ctx, engine.UTF8, []byte("x"))
	require.NoError(t, err)
	_, err = e.CreateCursor(ctx, native)
	assert.ErrorIs(t, err, engine.ErrForeignBuffer)
}

func TestWASMEngine_Close(t *testing.T) {
	// Test plan:
	// - Close the engine with a live cursor
	// - Verify the guest cursor is destroyed and later calls fail

	ctx := context.Background()
	guest := newFakeGuest()
	e, err := NewWASMEngine(ctx, guestWASM, WithHostModule(guest.register), WithModuleName(DefaultModuleName))
	require.NoError(t, err)

	buf, err := e.NewBuffer(ctx, engine.UTF8, []byte("left open"))
	require.NoError(t, err)
	id, err := e.CreateCursor(ctx, buf)
	require.NoError(t, err)

	require.NoError(t, e.Close(ctx))
	require.NoError(t, e.Close(ctx), "second close is a no-op")
	assert.Equal(t, 1, guest.destroyCount())
	assert.Equal(t, 0, e.LiveCursors())

	_, err = e.AdvanceCursor(ctx, id)
	assert.ErrorIs(t, err, engine.ErrEngineClosed)
	assert.ErrorIs(t, e.DestroyCursor(ctx, id), engine.ErrEngineClosed)
	_, err = e.NewBuffer(ctx, engine.UTF8, []byte("x"))
	assert.ErrorIs(t, err, engine.ErrEngineClosed)
}

func TestWASMEngine_HandleCleanup(t *testing.T) {
	// Test plan:
	// - Drive guest cursors through owning iterators that are dropped
	// - Verify every guest cursor and buffer is reclaimed exactly once

	ctx := context.Background()
	e, guest := createTestEngine(t, ctx)

	func() {
		for range 5 {
			buf, err := e.NewBuffer(ctx, engine.UTF8, []byte("drop me"))
			require.NoError(t, err)
			id, err := e.CreateCursor(ctx, buf)
			require.NoError(t, err)

			it := handle.New[testEncoding](e, id, true, buf)
			v, err := it.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, int32(0), v)
		}
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return e.LiveCursors() == 0 && guest.liveAllocs() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, guest.destroyCount())
}
