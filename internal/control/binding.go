package control

import (
	"sync"

	"github.com/runger/singleselect/internal/item"
)

// Binding is the externally owned, two-way bound value. A Control reads it
// on rebuilds and writes the output value to it. External changes must be
// forwarded explicitly through Control.OnContextChange; Set must not call
// back into the Control.
type Binding interface {
	Get() item.Item
	Set(item.Item)
}

// ValueBinding is an in-memory Binding.
type ValueBinding struct {
	mu    sync.Mutex
	value item.Item
	sets  int
}

// Compile-time check that ValueBinding implements Binding.
var _ Binding = (*ValueBinding)(nil)

// NewValueBinding creates a binding holding initial.
func NewValueBinding(initial item.Item) *ValueBinding {
	return &ValueBinding{value: initial}
}

// Get implements Binding.
func (b *ValueBinding) Get() item.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Set implements Binding.
func (b *ValueBinding) Set(v item.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = v
	b.sets++
}

// Writes reports how many times Set was called.
func (b *ValueBinding) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sets
}
