// Package relay implements the reference remote authority the sync
// client connects to.
//
// Each client holds one WebSocket at /ws/{client_id}. Every inbound
// mutation is validated, applied to the in-memory table, stamped with
// the next strictly-increasing version and broadcast to all connected
// clients — including the sender, whose reconciler converges on that
// echo. Legacy single-field edits are normalized to the batched
// row_changes form before broadcast, so old writers and new readers
// interoperate.
//
// The relay is deliberately not a durable or conflict-aware store: add
// overwrites, edit merges, delete removes, last message wins. It exists
// so the client stack can be developed, tested and load-tested against
// a real endpoint.
//
// Besides the WebSocket endpoint the server exposes /db (the table as
// JSON), /healthz and Prometheus /metrics. An optional YAML seed file
// populates the table at startup and, with Watch enabled, is reloaded
// on change with the diff broadcast to all clients.
package relay
