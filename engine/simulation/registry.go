package simulation

import (
	"fmt"
	"sort"
	"sync"
)

// Entry is a registered simulation factory. Its id is what a page passes to a worker
// to select which simulation the worker constructs.
type Entry struct {
	ID       uint32
	Name     string
	Controls string // control schema document, may be empty
	Factory  Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[uint32]Entry{}
)

// Register adds e to the process-wide registry. Id 0 is the default entry.
//
// Returns:
//   - error: error if the id is already taken or the factory is nil
func Register(e Entry) error {
	if e.Factory == nil {
		return fmt.Errorf("register simulation %q: nil factory", e.Name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, ok := registry[e.ID]; ok {
		return fmt.Errorf("register simulation %q: id %d already used by %q", e.Name, e.ID, prev.Name)
	}
	registry[e.ID] = e
	return nil
}

// MustRegister is Register for package init functions; it panics on error.
func MustRegister(e Entry) {
	if err := Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry registered under id.
func Lookup(id uint32) (Entry, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[id]
	return e, ok
}

// Entries returns every registered entry ordered by id.
func Entries() []Entry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Entry, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// unregister removes id; used by tests.
func unregister(id uint32) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, id)
}
