package submission

import (
	"context"
	"sync"
)

// Hook is called after a submission has been durably created. Hooks run
// on the write path and must not block.
type Hook func(ctx context.Context, s Submission)

// Hooks is a registry of write hooks. Each registration is removed by the
// func returned from Register, so the registry only holds live observers.
type Hooks struct {
	mu    sync.RWMutex
	next  uint64
	hooks map[uint64]Hook
}

// NewHooks returns an empty registry.
func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[uint64]Hook)}
}

// Register adds fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (h *Hooks) Register(fn Hook) (deregister func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.hooks[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.hooks, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks)
}

func (h *Hooks) fire(ctx context.Context, s Submission) {
	h.mu.RLock()
	fns := make([]Hook, 0, len(h.hooks))
	for _, fn := range h.hooks {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, s)
	}
}

// Observed wraps a Store and fires its hooks after every successful
// Create. Failed writes fire nothing.
type Observed struct {
	Store
	hooks *Hooks
}

// Observe returns store with hooks attached to its write path.
func Observe(store Store, hooks *Hooks) *Observed {
	return &Observed{Store: store, hooks: hooks}
}

// Hooks returns the registry attached to the store.
func (o *Observed) Hooks() *Hooks {
	return o.hooks
}

func (o *Observed) Create(ctx context.Context, n New) (Submission, error) {
	s, err := o.Store.Create(ctx, n)
	if err != nil {
		return Submission{}, err
	}
	o.hooks.fire(ctx, s)
	return s, nil
}
