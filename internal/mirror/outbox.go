package mirror

import "rowsync/internal/schema"

// enqueue appends an unsendable intent to the outbox in issue order.
func (r *Reconciler) enqueue(mut *schema.Mutation) {
	r.mu.Lock()
	r.outbox = append(r.outbox, mut)
	r.mu.Unlock()
	r.logger.Printf("queued %s for %s, %d pending", mut.Type, mut.Key, r.Pending())
}

// Pending reports the number of queued intents awaiting replay.
func (r *Reconciler) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outbox)
}

// Flush replays queued intents in issue order. It stops at the first
// send failure, keeping the failed intent and everything after it
// queued, and returns the number replayed alongside the error.
func (r *Reconciler) Flush() (int, error) {
	r.mu.Lock()
	queued := r.outbox
	r.outbox = nil
	r.mu.Unlock()

	for i, mut := range queued {
		if err := r.sender.Send(mut); err != nil {
			r.mu.Lock()
			r.outbox = append(queued[i:], r.outbox...)
			r.mu.Unlock()
			return i, err
		}
	}
	return len(queued), nil
}
