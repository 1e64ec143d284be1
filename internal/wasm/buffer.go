package wasm

import "github.com/okra-platform/breakiter/internal/engine"

// guestAlloc tracks one region of guest memory. It is freed when the buffer
// owning it is unreachable and no cursor reads it any more, whichever
// happens last. Guarded by the engine mutex.
type guestAlloc struct {
	ptr      uint32
	size     uint32
	cursors  int
	orphaned bool
	freed    bool
}

// guestBuffer is text living in guest memory
type guestBuffer struct {
	owner *WASMEngine
	enc   engine.Encoding
	units int
	alloc *guestAlloc
}

func (b *guestBuffer) Encoding() engine.Encoding { return b.enc }
func (b *guestBuffer) Len() int                  { return b.units }
