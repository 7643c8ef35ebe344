package table

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tablemesh/tablemesh/pkg/status"
)

// Registry is the id-to-table map (spec.md §4.1), adapted from the
// original's global GetTable/PutTable/RemoveTable functions into an explicit
// value, created with NewRegistry and passed to every operation that reads or
// registers tables, with the same three operations plus Put's
// id-generation convenience. All methods are safe for concurrent use: the
// cooperative single-threaded progress model makes contention rare, but the
// CSV reader's concurrent_file_reads path (pkg/csvio) writes into distinct
// slots from multiple goroutines and joins before returning, so the lock
// still has to be real.
type Registry struct {
	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Put registers t under a freshly generated id and returns it.
func (r *Registry) Put(t *Table) string {
	id := uuid.NewString()
	r.PutWithID(id, t)
	return id
}

// PutWithID registers t under id, replacing anything already there. The
// caller is responsible for arranging that ids are not reused across
// distinct lifetimes (spec.md §3's registry invariant).
func (r *Registry) PutWithID(id string, t *Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[id] = t
}

// Get returns the table registered under id, or a KeyError status if none
// exists.
func (r *Registry) Get(id string) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[id]
	if !ok {
		return nil, status.New(status.KeyError, "table: no table registered under id %q", id)
	}
	return t, nil
}

// Remove releases and deregisters the table under id. Removing an id that
// is not present is not an error: callers clean up intermediate ids on both
// success and failure paths, and a double-remove should be harmless.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	t, ok := r.tables[id]
	delete(r.tables, id)
	r.mu.Unlock()

	if ok {
		t.Release()
	}
}

// Len reports the number of currently registered tables. Test-only helper.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}
