package mirror

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"rowsync/internal/conn"
	"rowsync/internal/schema"
)

// Sender transmits mutation messages to the remote authority.
// *conn.Manager satisfies it.
type Sender interface {
	Send(*schema.Mutation) error
}

// Entry is one record in the local mapping: the entity payload plus the
// tombstone flag. Tombstoned entries stay resident but drop out of the
// active view.
type Entry struct {
	Entity  schema.Entity
	Deleted bool
}

// Config holds the settings for a Reconciler.
type Config struct {
	// Sender transmits outbound mutations. Required.
	Sender Sender

	// OnApply, if set, is invoked after every remote mutation that was
	// merged into local state. UI layers use it to re-render. It runs
	// on the caller of HandleRemote (the connection's read goroutine).
	OnApply func(*schema.Mutation)

	// QueueOnSendFailure retains intents whose send failed with
	// conn.ErrNotConnected for replay via Flush. Off by default: the
	// documented behavior is to drop, not queue.
	QueueOnSendFailure bool

	// Logger for merge and queue events. Defaults to log.Default().
	Logger *log.Logger
}

// Reconciler applies optimistic local mutations and remote confirmations
// to one shared entity mapping. All methods are safe for concurrent use;
// inbound messages keep their delivery order as long as HandleRemote is
// called from a single goroutine, which conn.Manager guarantees.
type Reconciler struct {
	sender  Sender
	onApply func(*schema.Mutation)
	queue   bool
	logger  *log.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	outbox  []*schema.Mutation
}

// New creates a Reconciler with an empty mapping.
func New(config Config) (*Reconciler, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	return &Reconciler{
		sender:  config.Sender,
		onApply: config.OnApply,
		queue:   config.QueueOnSendFailure,
		logger:  config.Logger,
		entries: make(map[string]Entry),
	}, nil
}

// AddEntity inserts the entity optimistically under its name —
// overwriting any prior entry, last writer wins locally — and requests
// transmission of an add message carrying the full payload.
func (r *Reconciler) AddEntity(name string, age int, email string) error {
	e := schema.Entity{Name: name, Age: age, Email: email}
	if err := e.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[name] = Entry{Entity: e}
	r.mu.Unlock()

	return r.transmit(schema.NewAdd(e))
}

// EditEntity shallow-merges {field: value} into the entry at key and
// requests transmission of an edit message. An unknown key merges onto
// an empty base, leaving a partial record behind.
func (r *Reconciler) EditEntity(key, field string, value any) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	entry := r.entries[key]
	merged, err := entry.Entity.Merge(map[string]any{field: value})
	if err != nil {
		r.mu.Unlock()
		return err
	}
	entry.Entity = merged
	r.entries[key] = entry
	r.mu.Unlock()

	return r.transmit(schema.NewEdit(key, field, value))
}

// DeleteEntity tombstones the entry at key and requests transmission of
// a delete message. An unknown key leaves a bare tombstone so the policy
// matches the remote path.
func (r *Reconciler) DeleteEntity(key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	entry := r.entries[key]
	entry.Deleted = true
	r.entries[key] = entry
	r.mu.Unlock()

	return r.transmit(schema.NewDelete(key))
}

// HandleRemote merges one inbound mutation into local state. It is the
// registered conn.MessageHandler target and is also safe to call
// directly. Invalid mutations are logged and dropped without touching
// state.
func (r *Reconciler) HandleRemote(mut *schema.Mutation) {
	if mut == nil {
		return
	}
	if err := mut.Validate(); err != nil {
		r.logger.Printf("rejecting inbound %s: %v", mut.Type, err)
		return
	}

	r.mu.Lock()
	switch mut.Type {
	case schema.TypeAdd:
		r.entries[mut.Key] = Entry{Entity: *mut.Data}
	case schema.TypeEdit:
		entry := r.entries[mut.Key]
		merged, err := entry.Entity.Merge(mut.Changes())
		if err != nil {
			r.mu.Unlock()
			r.logger.Printf("rejecting inbound edit for %s: %v", mut.Key, err)
			return
		}
		entry.Entity = merged
		r.entries[mut.Key] = entry
	case schema.TypeDelete:
		entry := r.entries[mut.Key]
		entry.Deleted = true
		r.entries[mut.Key] = entry
	}
	r.mu.Unlock()

	if r.onApply != nil {
		r.onApply(mut)
	}
}

// Get returns the active entity at key. Tombstoned and absent keys
// report ok = false.
func (r *Reconciler) Get(key string) (schema.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[key]
	if !ok || entry.Deleted {
		return schema.Entity{}, false
	}
	return entry.Entity, true
}

// Active returns a copy of the mapping with tombstones excluded.
func (r *Reconciler) Active() map[string]schema.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]schema.Entity, len(r.entries))
	for key, entry := range r.entries {
		if !entry.Deleted {
			out[key] = entry.Entity
		}
	}
	return out
}

// Entries returns a copy of the raw mapping, tombstones included.
func (r *Reconciler) Entries() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for key, entry := range r.entries {
		out[key] = entry
	}
	return out
}

// transmit sends one mutation, queueing it when configured to and the
// connection is down. Queued intents return nil: they will be replayed.
func (r *Reconciler) transmit(mut *schema.Mutation) error {
	err := r.sender.Send(mut)
	if err == nil {
		return nil
	}
	if r.queue && errors.Is(err, conn.ErrNotConnected) {
		r.enqueue(mut)
		return nil
	}
	return err
}
