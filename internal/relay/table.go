package relay

import (
	"fmt"
	"sync"

	"rowsync/internal/schema"
)

// Table is the relay's authoritative entity table. Every accepted
// mutation is stamped with the next version (strictly increasing) and
// returned in its broadcast form; legacy field/value edits come back
// normalized to row_changes.
//
// Semantics are deliberately minimal: add overwrites, edit merges,
// delete removes. The relay detects no conflicts; ordering is whatever
// order mutations arrive in.
type Table struct {
	mu      sync.RWMutex
	version int64
	entries map[string]schema.Entity
}

// NewTable returns an empty table at version zero.
func NewTable() *Table {
	return &Table{entries: make(map[string]schema.Entity)}
}

// Apply validates one inbound mutation, applies it, stamps the next
// version and returns the normalized message to broadcast. The table is
// untouched when an error is returned.
func (t *Table) Apply(mut *schema.Mutation) (*schema.Mutation, error) {
	if mut == nil {
		return nil, fmt.Errorf("nil mutation")
	}
	if err := mut.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := &schema.Mutation{
		Type:     mut.Type,
		Key:      mut.Key,
		ClientID: mut.ClientID,
		Time:     mut.Time,
	}

	switch mut.Type {
	case schema.TypeAdd:
		e := *mut.Data
		t.entries[mut.Key] = e
		out.Data = &e
	case schema.TypeEdit:
		changes := mut.Changes()
		merged, err := t.entries[mut.Key].Merge(changes)
		if err != nil {
			return nil, err
		}
		t.entries[mut.Key] = merged
		out.RowChanges = changes
	case schema.TypeDelete:
		delete(t.entries, mut.Key)
	}

	t.version++
	out.Version = t.version
	return out, nil
}

// Snapshot returns a copy of the current table.
func (t *Table) Snapshot() map[string]schema.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]schema.Entity, len(t.entries))
	for key, e := range t.entries {
		out[key] = e
	}
	return out
}

// Version returns the version stamped on the most recent mutation.
func (t *Table) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Len returns the number of rows currently held.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
