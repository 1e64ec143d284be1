package engine

import (
	"fmt"
	"sync"
)

// Arena is a slot table of values addressed by generation-checked CursorIDs.
// Removing a value bumps its slot generation, so ids issued before the
// removal stop resolving even after the slot is reused.
type Arena[T any] struct {
	mu    sync.Mutex
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

type arenaSlot[T any] struct {
	generation uint32
	occupied   bool
	value      T
}

// NewArena creates an empty arena
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores value and returns the id that resolves to it
func (a *Arena[T]) Insert(value T) CursorID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}

	slot := &a.slots[index]
	slot.generation++
	if slot.generation == 0 {
		// Generation 0 marks invalid ids
		slot.generation = 1
	}
	slot.occupied = true
	slot.value = value
	a.live++

	return newCursorID(index, slot.generation)
}

// Get returns the value id resolves to
func (a *Arena[T]) Get(id CursorID) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, err := a.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return slot.value, nil
}

// Remove deletes the value id resolves to and returns it. The id, and every
// copy of it, is stale afterwards.
func (a *Arena[T]) Remove(id CursorID) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	slot, err := a.lookup(id)
	if err != nil {
		return zero, err
	}

	value := slot.value
	slot.value = zero
	slot.occupied = false
	a.free = append(a.free, id.Index())
	a.live--

	return value, nil
}

// Len returns the number of live values
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Drain removes every live value and returns them in slot order
func (a *Arena[T]) Drain() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	values := make([]T, 0, a.live)
	for i := range a.slots {
		slot := &a.slots[i]
		if !slot.occupied {
			continue
		}
		values = append(values, slot.value)
		slot.value = zero
		slot.occupied = false
		a.free = append(a.free, uint32(i))
	}
	a.live = 0

	return values
}

func (a *Arena[T]) lookup(id CursorID) (*arenaSlot[T], error) {
	index := id.Index()
	if !id.Valid() || int(index) >= len(a.slots) {
		return nil, fmt.Errorf("%w: %s", ErrStaleCursor, id)
	}

	slot := &a.slots[index]
	if !slot.occupied || slot.generation != id.Generation() {
		return nil, fmt.Errorf("%w: %s", ErrStaleCursor, id)
	}
	return slot, nil
}
