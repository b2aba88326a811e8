package pipeline

import (
	"log/slog"
	"sync"
)

// Teardown collects cleanups for short-lived helper processes (the Forge
// installer) that must not outlive the agent.
type Teardown struct {
	mu   sync.Mutex
	next int
	fns  map[int]teardownEntry
	log  *slog.Logger
}

type teardownEntry struct {
	name string
	fn   func()
}

func NewTeardown(log *slog.Logger) *Teardown {
	if log == nil {
		log = slog.Default()
	}
	return &Teardown{fns: make(map[int]teardownEntry), log: log}
}

// Add registers fn and returns a function that unregisters it.
func (t *Teardown) Add(name string, fn func()) (remove func()) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.fns[id] = teardownEntry{name: name, fn: fn}
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.fns, id)
		t.mu.Unlock()
	}
}

// Len reports the number of registered cleanups.
func (t *Teardown) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fns)
}

// Run invokes and unregisters every cleanup.
func (t *Teardown) Run() {
	t.mu.Lock()
	entries := make([]teardownEntry, 0, len(t.fns))
	for id, e := range t.fns {
		entries = append(entries, e)
		delete(t.fns, id)
	}
	t.mu.Unlock()
	for _, e := range entries {
		t.log.Info("teardown", "name", e.name)
		e.fn()
	}
}
