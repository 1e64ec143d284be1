package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/stretchr/testify/mock"
)

// MockEngine is a testify mock of engine.Engine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) NewBuffer(ctx context.Context, enc engine.Encoding, data []byte) (engine.Buffer, error) {
	args := m.Called(ctx, enc, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Buffer), args.Error(1)
}

func (m *MockEngine) CreateCursor(ctx context.Context, buf engine.Buffer) (engine.CursorID, error) {
	args := m.Called(ctx, buf)
	return args.Get(0).(engine.CursorID), args.Error(1)
}

func (m *MockEngine) AdvanceCursor(ctx context.Context, id engine.CursorID) (int32, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int32), args.Error(1)
}

func (m *MockEngine) DestroyCursor(ctx context.Context, id engine.CursorID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEngine) LiveCursors() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockEngine) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// SequenceBuffer is a buffer whose cursors replay a fixed boundary sequence
type SequenceBuffer struct {
	Boundaries []int32
	Units      int
}

func (b *SequenceBuffer) Encoding() engine.Encoding { return engine.UTF8 }
func (b *SequenceBuffer) Len() int                  { return b.Units }

// SequenceEngine is an engine whose cursors replay the boundaries of a
// SequenceBuffer. It counts destroy calls so tests can assert a cursor is
// destroyed exactly once, including from automatic cleanup goroutines.
type SequenceEngine struct {
	cursors *engine.Arena[*sequenceCursor]

	mu        sync.Mutex
	destroyed map[engine.CursorID]int

	destroyCalls atomic.Int64
	closed       atomic.Bool
}

type sequenceCursor struct {
	boundaries []int32
	next       int
}

// NewSequenceEngine creates an empty SequenceEngine
func NewSequenceEngine() *SequenceEngine {
	return &SequenceEngine{
		cursors:   engine.NewArena[*sequenceCursor](),
		destroyed: make(map[engine.CursorID]int),
	}
}

// NewBuffer ignores data and returns an empty sequence buffer
func (e *SequenceEngine) NewBuffer(ctx context.Context, enc engine.Encoding, data []byte) (engine.Buffer, error) {
	return &SequenceBuffer{Units: len(data)}, nil
}

// Start creates a cursor replaying boundaries
func (e *SequenceEngine) Start(boundaries ...int32) engine.CursorID {
	return e.cursors.Insert(&sequenceCursor{boundaries: boundaries})
}

func (e *SequenceEngine) CreateCursor(ctx context.Context, buf engine.Buffer) (engine.CursorID, error) {
	if e.closed.Load() {
		return 0, engine.ErrEngineClosed
	}
	seq, ok := buf.(*SequenceBuffer)
	if !ok {
		return 0, engine.ErrForeignBuffer
	}
	return e.Start(seq.Boundaries...), nil
}

func (e *SequenceEngine) AdvanceCursor(ctx context.Context, id engine.CursorID) (int32, error) {
	if e.closed.Load() {
		return 0, engine.ErrEngineClosed
	}
	c, err := e.cursors.Get(id)
	if err != nil {
		return 0, err
	}
	if c.next >= len(c.boundaries) {
		return engine.End, nil
	}
	v := c.boundaries[c.next]
	c.next++
	return v, nil
}

func (e *SequenceEngine) DestroyCursor(ctx context.Context, id engine.CursorID) error {
	e.destroyCalls.Add(1)

	e.mu.Lock()
	e.destroyed[id]++
	e.mu.Unlock()

	if e.closed.Load() {
		return engine.ErrEngineClosed
	}
	_, err := e.cursors.Remove(id)
	return err
}

func (e *SequenceEngine) LiveCursors() int {
	return e.cursors.Len()
}

func (e *SequenceEngine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cursors.Drain()
	return nil
}

// DestroyCalls returns the total number of DestroyCursor calls
func (e *SequenceEngine) DestroyCalls() int64 {
	return e.destroyCalls.Load()
}

// DestroyCount returns how often DestroyCursor was called with id
func (e *SequenceEngine) DestroyCount(id engine.CursorID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed[id]
}

var (
	_ engine.Engine = (*MockEngine)(nil)
	_ engine.Engine = (*SequenceEngine)(nil)
)
