// Package mirror keeps a local entity mapping convergent with remote
// state under optimistic local writes and asynchronous remote
// confirmations.
//
// Every local intent (AddEntity, EditEntity, DeleteEntity) mutates the
// mapping immediately, then requests transmission through the configured
// Sender. Every inbound mutation — including echoes of this client's own
// intents — is merged by HandleRemote in transport delivery order:
//
//   - add overwrites the entry unconditionally (last write wins),
//   - edit shallow-merges the change set into the entry,
//   - delete tombstones the entry.
//
// Deletes tombstone rather than remove, so a delete is an ordinary merge
// and an add replayed after a delete simply revives the record. Edits
// and deletes referencing unknown keys merge onto an empty base,
// creating a partial record or a bare tombstone; the same policy applies
// on the local and remote paths.
//
// Malformed mutations are rejected before any state is touched. Nothing
// inspects the version field: messages apply strictly in arrival order,
// so a stale overwrite after an out-of-order redelivery is possible and
// accepted.
package mirror
