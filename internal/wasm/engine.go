package wasm

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// DefaultModuleName is the name the guest is instantiated under
const DefaultModuleName = "breakiter"

// Exports names the guest functions the engine calls
type Exports struct {
	// Create is (ptr, len, encoding i32) -> cursor i32; 0 means failure
	Create string `json:"create"`
	// Next is (cursor i32) -> boundary i32; -1 means end
	Next string `json:"next"`
	// Destroy is (cursor i32) -> ()
	Destroy string `json:"destroy"`
	// Allocate is (size i32) -> ptr i32
	Allocate string `json:"allocate"`
	// Deallocate is (ptr i32) -> ()
	Deallocate string `json:"deallocate"`
}

// DefaultExports returns the export names of the breakiter guest ABI
func DefaultExports() Exports {
	return Exports{
		Create:     "breakiter_create",
		Next:       "breakiter_next",
		Destroy:    "breakiter_destroy",
		Allocate:   "allocate",
		Deallocate: "deallocate",
	}
}

// HostModuleFunc registers host modules the guest imports. It runs after
// WASI is instantiated and before the guest is compiled.
type HostModuleFunc func(ctx context.Context, r wazero.Runtime) error

// Option configures a WASMEngine
type Option func(*options)

type options struct {
	moduleName  string
	exports     Exports
	hostModules []HostModuleFunc
	logger      zerolog.Logger
}

// WithModuleName sets the name the guest module is instantiated under
func WithModuleName(name string) Option {
	return func(o *options) {
		o.moduleName = name
	}
}

// WithExports overrides the guest export names. Empty fields keep their
// default.
func WithExports(exports Exports) Option {
	return func(o *options) {
		defaults := DefaultExports()
		if exports.Create == "" {
			exports.Create = defaults.Create
		}
		if exports.Next == "" {
			exports.Next = defaults.Next
		}
		if exports.Destroy == "" {
			exports.Destroy = defaults.Destroy
		}
		if exports.Allocate == "" {
			exports.Allocate = defaults.Allocate
		}
		if exports.Deallocate == "" {
			exports.Deallocate = defaults.Deallocate
		}
		o.exports = exports
	}
}

// WithHostModule registers a host module before the guest is instantiated
func WithHostModule(fn HostModuleFunc) Option {
	return func(o *options) {
		o.hostModules = append(o.hostModules, fn)
	}
}

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WASMEngine is an engine.Engine whose cursors live inside a wazero guest.
//
// Every guest call is made with mu held: wazero functions are not safe for
// concurrent calls and buffers are reclaimed from cleanup goroutines.
type WASMEngine struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  api.Module
	closed  bool
	logger  zerolog.Logger

	create     api.Function
	next       api.Function
	destroy    api.Function
	allocate   api.Function
	deallocate api.Function

	// Guest cursor handles are reused by the guest; ids handed to callers
	// go through the arena so a stale id never reaches a reused handle.
	cursors *engine.Arena[*guestCursor]
}

type guestCursor struct {
	handle uint32
	alloc  *guestAlloc
}

// NewWASMEngine compiles and instantiates the guest in wasmBytes
func NewWASMEngine(ctx context.Context, wasmBytes []byte, opts ...Option) (*WASMEngine, error) {
	if len(wasmBytes) == 0 {
		return nil, fmt.Errorf("wasm bytes cannot be empty")
	}

	o := options{
		moduleName: DefaultModuleName,
		exports:    DefaultExports(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	// Create a new runtime
	r := wazero.NewRuntime(ctx)

	// Instantiate WASI
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	for _, register := range o.hostModules {
		if err := register(ctx, r); err != nil {
			r.Close(ctx)
			return nil, fmt.Errorf("failed to register host module: %w", err)
		}
	}

	// Compile the module
	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	// Reactor module: don't call _start
	config := wazero.NewModuleConfig().
		WithStdout(nil).
		WithStderr(nil).
		WithName(o.moduleName).
		WithStartFunctions()

	module, err := r.InstantiateModule(ctx, compiled, config)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	// Call _initialize if it exists
	if initialize := module.ExportedFunction("_initialize"); initialize != nil {
		if _, err := initialize.Call(ctx); err != nil {
			r.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	if module.Memory() == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("module does not export memory")
	}

	e := &WASMEngine{
		runtime: r,
		module:  module,
		logger:  o.logger.With().Str("component", "wasm").Str("module", o.moduleName).Logger(),
		cursors: engine.NewArena[*guestCursor](),
	}

	// Get required functions
	for _, fn := range []struct {
		name string
		dst  *api.Function
	}{
		{o.exports.Create, &e.create},
		{o.exports.Next, &e.next},
		{o.exports.Destroy, &e.destroy},
		{o.exports.Allocate, &e.allocate},
		{o.exports.Deallocate, &e.deallocate},
	} {
		*fn.dst = module.ExportedFunction(fn.name)
		if *fn.dst == nil {
			r.Close(ctx)
			return nil, fmt.Errorf("%s function not found", fn.name)
		}
	}

	return e, nil
}

// NewBuffer copies data into guest memory
func (e *WASMEngine) NewBuffer(ctx context.Context, enc engine.Encoding, data []byte) (engine.Buffer, error) {
	switch enc {
	case engine.UTF8, engine.Latin1:
	case engine.UTF16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: utf-16 data has %d bytes", ErrInvalidBuffer, len(data))
		}
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEncoding, enc)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, engine.ErrEngineClosed
	}

	alloc := &guestAlloc{size: uint32(len(data))}
	if len(data) > 0 {
		// Allocate memory for the text
		results, err := e.allocate.Call(ctx, uint64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate memory for buffer: %w", err)
		}
		alloc.ptr = uint32(results[0])
		if alloc.ptr == 0 {
			return nil, fmt.Errorf("%w: allocate returned null", ErrGuestOutOfMemory)
		}

		// Write text to memory
		if !e.module.Memory().Write(alloc.ptr, data) {
			_, _ = e.deallocate.Call(ctx, uint64(alloc.ptr))
			return nil, fmt.Errorf("failed to write buffer to memory")
		}
	}

	buf := &guestBuffer{
		owner: e,
		enc:   enc,
		units: len(data) / enc.UnitSize(),
		alloc: alloc,
	}
	runtime.AddCleanup(buf, e.orphan, alloc)

	return buf, nil
}

// CreateCursor asks the guest for a cursor over buf
func (e *WASMEngine) CreateCursor(ctx context.Context, buf engine.Buffer) (engine.CursorID, error) {
	b, ok := buf.(*guestBuffer)
	if !ok || b.owner != e {
		return 0, fmt.Errorf("%w: %T", engine.ErrForeignBuffer, buf)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, engine.ErrEngineClosed
	}

	results, err := e.create.Call(ctx, uint64(b.alloc.ptr), uint64(b.alloc.size), uint64(b.enc))
	runtime.KeepAlive(b)
	if err != nil {
		return 0, fmt.Errorf("failed to call create: %w", err)
	}

	handle := uint32(results[0])
	if handle == 0 {
		return 0, ErrGuestRejected
	}

	b.alloc.cursors++
	return e.cursors.Insert(&guestCursor{handle: handle, alloc: b.alloc}), nil
}

// AdvanceCursor asks the guest for the next boundary
func (e *WASMEngine) AdvanceCursor(ctx context.Context, id engine.CursorID) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, engine.ErrEngineClosed
	}

	c, err := e.cursors.Get(id)
	if err != nil {
		return 0, err
	}

	results, err := e.next.Call(ctx, uint64(c.handle))
	if err != nil {
		return 0, fmt.Errorf("failed to call next: %w", err)
	}

	v := api.DecodeI32(results[0])
	if v < 0 {
		return engine.End, nil
	}
	return v, nil
}

// DestroyCursor frees the guest cursor. Its buffer is freed too once the
// buffer is unreachable and no other cursor reads it.
func (e *WASMEngine) DestroyCursor(ctx context.Context, id engine.CursorID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return engine.ErrEngineClosed
	}

	c, err := e.cursors.Remove(id)
	if err != nil {
		return err
	}

	_, callErr := e.destroy.Call(ctx, uint64(c.handle))

	c.alloc.cursors--
	if c.alloc.orphaned && c.alloc.cursors == 0 {
		e.freeLocked(ctx, c.alloc)
	}

	if callErr != nil {
		return fmt.Errorf("failed to call destroy: %w", callErr)
	}
	return nil
}

// LiveCursors returns the number of cursors not yet destroyed
func (e *WASMEngine) LiveCursors() int {
	return e.cursors.Len()
}

// Close destroys any remaining cursors and closes the runtime
func (e *WASMEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var result error
	leaked := e.cursors.Drain()
	for _, c := range leaked {
		if _, err := e.destroy.Call(ctx, uint64(c.handle)); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to destroy guest cursor %d: %w", c.handle, err))
		}
	}
	if len(leaked) > 0 {
		e.logger.Warn().Int("cursors", len(leaked)).Msg("engine closed with live cursors")
	}

	if err := e.runtime.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close runtime: %w", err))
	}

	return result
}

// orphan runs once a buffer is unreachable
func (e *WASMEngine) orphan(alloc *guestAlloc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alloc.orphaned = true
	if alloc.cursors == 0 {
		e.freeLocked(context.Background(), alloc)
	}
}

func (e *WASMEngine) freeLocked(ctx context.Context, alloc *guestAlloc) {
	if alloc.freed {
		return
	}
	alloc.freed = true

	// The runtime owns all guest memory once closed
	if e.closed || alloc.ptr == 0 {
		return
	}

	if _, err := e.deallocate.Call(ctx, uint64(alloc.ptr)); err != nil {
		e.logger.Warn().Err(err).Uint32("ptr", alloc.ptr).Msg("failed to deallocate buffer")
	}
}

// Ensure WASMEngine implements engine.Engine
var _ engine.Engine = (*WASMEngine)(nil)
