package wasm

import (
	"context"
	"sync"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/segmenter"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// guestWASM is a minimal reactor module. It exports one page of memory and
// re-exports five functions it imports from "env":
//
//	(import "env" "create_cursor"  (func (param i32 i32 i32) (result i32)))
//	(import "env" "advance_cursor" (func (param i32) (result i32)))
//	(import "env" "destroy_cursor" (func (param i32)))
//	(import "env" "allocate"       (func (param i32) (result i32)))
//	(import "env" "deallocate"     (func (param i32)))
//
// under the default breakiter export names, so the host side of a test
// decides how the "guest" behaves.
var guestWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x11, 0x03, 0x60,
	0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x01, 0x7f, 0x01, 0x7f, 0x60,
	0x01, 0x7f, 0x00, 0x02, 0x5f, 0x05, 0x03, 0x65, 0x6e, 0x76, 0x0d, 0x63,
	0x72, 0x65, 0x61, 0x74, 0x65, 0x5f, 0x63, 0x75, 0x72, 0x73, 0x6f, 0x72,
	0x00, 0x00, 0x03, 0x65, 0x6e, 0x76, 0x0e, 0x61, 0x64, 0x76, 0x61, 0x6e,
	0x63, 0x65, 0x5f, 0x63, 0x75, 0x72, 0x73, 0x6f, 0x72, 0x00, 0x01, 0x03,
	0x65, 0x6e, 0x76, 0x0e, 0x64, 0x65, 0x73, 0x74, 0x72, 0x6f, 0x79, 0x5f,
	0x63, 0x75, 0x72, 0x73, 0x6f, 0x72, 0x00, 0x02, 0x03, 0x65, 0x6e, 0x76,
	0x08, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x61, 0x74, 0x65, 0x00, 0x01, 0x03,
	0x65, 0x6e, 0x76, 0x0a, 0x64, 0x65, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x61,
	0x74, 0x65, 0x00, 0x02, 0x05, 0x03, 0x01, 0x00, 0x01, 0x07, 0x5a, 0x06,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, 0x10, 0x62, 0x72,
	0x65, 0x61, 0x6b, 0x69, 0x74, 0x65, 0x72, 0x5f, 0x63, 0x72, 0x65, 0x61,
	0x74, 0x65, 0x00, 0x00, 0x0e, 0x62, 0x72, 0x65, 0x61, 0x6b, 0x69, 0x74,
	0x65, 0x72, 0x5f, 0x6e, 0x65, 0x78, 0x74, 0x00, 0x01, 0x11, 0x62, 0x72,
	0x65, 0x61, 0x6b, 0x69, 0x74, 0x65, 0x72, 0x5f, 0x64, 0x65, 0x73, 0x74,
	0x72, 0x6f, 0x79, 0x00, 0x02, 0x08, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x61,
	0x74, 0x65, 0x00, 0x03, 0x0a, 0x64, 0x65, 0x61, 0x6c, 0x6c, 0x6f, 0x63,
	0x61, 0x74, 0x65, 0x00, 0x04,
}

// fakeGuest implements the guest ABI in Go on top of the native segmenter.
// Cursor handles are the lowest free integer, so destroyed handles are
// reused the way a real guest reuses freed pointers.
type fakeGuest struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	native   *segmenter.Engine
	handles  map[uint32]engine.CursorID
	heapNext uint32
	allocs   map[uint32]uint32
	freed    []uint32
	destroys int
	rejectAt int
	creates  int
}

const guestHeapBase = 1024

func newFakeGuest() *fakeGuest {
	return &fakeGuest{
		native:   segmenter.New(),
		handles:  make(map[uint32]engine.CursorID),
		heapNext: guestHeapBase,
		allocs:   make(map[uint32]uint32),
	}
}

func (g *fakeGuest) memory() api.Memory {
	return g.runtime.Module(DefaultModuleName).Memory()
}

func (g *fakeGuest) register(ctx context.Context, r wazero.Runtime) error {
	g.runtime = r
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(g.createCursor).Export("create_cursor").
		NewFunctionBuilder().WithFunc(g.advanceCursor).Export("advance_cursor").
		NewFunctionBuilder().WithFunc(g.destroyCursor).Export("destroy_cursor").
		NewFunctionBuilder().WithFunc(g.allocateMemory).Export("allocate").
		NewFunctionBuilder().WithFunc(g.deallocateMemory).Export("deallocate").
		Instantiate(ctx)
	return err
}

func (g *fakeGuest) createCursor(ctx context.Context, ptr, size, enc uint32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.creates++
	if g.rejectAt > 0 && g.creates == g.rejectAt {
		return 0
	}

	data, ok := g.memory().Read(ptr, size)
	if !ok {
		return 0
	}
	buf, err := g.native.NewBuffer(ctx, engine.Encoding(enc), data)
	if err != nil {
		return 0
	}
	id, err := g.native.CreateCursor(ctx, buf)
	if err != nil {
		return 0
	}

	handle := uint32(1)
	for {
		if _, used := g.handles[handle]; !used {
			break
		}
		handle++
	}
	g.handles[handle] = id
	return handle
}

func (g *fakeGuest) advanceCursor(ctx context.Context, handle uint32) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.handles[handle]
	if !ok {
		panic("advance of unknown guest cursor")
	}
	v, err := g.native.AdvanceCursor(ctx, id)
	if err != nil {
		panic(err)
	}
	return v
}

func (g *fakeGuest) destroyCursor(ctx context.Context, handle uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.handles[handle]
	if !ok {
		panic("double destroy of guest cursor")
	}
	delete(g.handles, handle)
	g.destroys++
	if err := g.native.DestroyCursor(ctx, id); err != nil {
		panic(err)
	}
}

func (g *fakeGuest) allocateMemory(ctx context.Context, size uint32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ptr := (g.heapNext + 7) &^ 7
	if ptr+size > g.memory().Size() {
		return 0
	}
	g.heapNext = ptr + size
	g.allocs[ptr] = size
	return ptr
}

func (g *fakeGuest) deallocateMemory(ctx context.Context, ptr uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.allocs[ptr]; !ok {
		panic("deallocate of unknown pointer")
	}
	delete(g.allocs, ptr)
	g.freed = append(g.freed, ptr)
}

func (g *fakeGuest) liveAllocs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.allocs)
}

func (g *fakeGuest) destroyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroys
}

func (g *fakeGuest) liveHandles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}
