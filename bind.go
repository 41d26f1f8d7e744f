package webwindow

import (
	"sync"
	"sync/atomic"
)

type bindKey struct {
	window  int
	element string
}

type binding struct {
	id      uint64
	window  int
	element string
	handler Handler
}

// bindTable maps (window, element) to a handler. The empty element is the
// wildcard for its window. Rebinding a pair silently replaces the previous
// handler; there is no unbind. Bind ids are process-wide unique and never
// collide with a live bind id.
type bindTable struct {
	mu     sync.RWMutex
	binds  map[bindKey]*binding
	byID   map[uint64]*binding
	nextID atomic.Uint64
}

func newBindTable() *bindTable {
	return &bindTable{
		binds: make(map[bindKey]*binding),
		byID:  make(map[uint64]*binding),
	}
}

// bind registers a handler and returns its bind id. A previous binding for
// the same pair is overwritten and its id retired.
func (t *bindTable) bind(window int, element string, h Handler) uint64 {
	key := bindKey{window: window, element: element}
	b := &binding{
		id:      t.nextID.Add(1),
		window:  window,
		element: element,
		handler: h,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.binds[key]; ok {
		delete(t.byID, old.id)
	}
	t.binds[key] = b
	t.byID[b.id] = b
	return b.id
}

// resolve finds the handler for an event: exact (window, element) match
// first, wildcard for the window otherwise.
func (t *bindTable) resolve(window int, element string) (*binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.binds[bindKey{window: window, element: element}]; ok {
		return b, true
	}
	b, ok := t.binds[bindKey{window: window}]
	return b, ok
}

// lookupID resolves a live bind id back to its binding.
func (t *bindTable) lookupID(id uint64) (*binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.byID[id]
	return b, ok
}

// dropWindow releases every bind entry owned by the window.
func (t *bindTable) dropWindow(window int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, b := range t.binds {
		if key.window == window {
			delete(t.binds, key)
			delete(t.byID, b.id)
		}
	}
}
