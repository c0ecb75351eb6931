// Package conn maintains the persistent WebSocket connection between a
// sync session and the relay, with automatic linear-backoff reconnection.
//
// # Lifecycle
//
// A Manager owns exactly one logical connection per session:
//
//	sess := session.New()
//	mgr, err := conn.New(conn.Config{
//	    URL:     "ws://127.0.0.1:8787",
//	    Session: sess,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = mgr.Connect(func(mut *schema.Mutation) {
//	    // inbound mutations, exactly once, in delivery order
//	})
//	defer mgr.Disconnect()
//
// Connect returns immediately. A transport-level dial failure never
// surfaces to the caller: the manager falls into its reconnection loop,
// waiting BaseDelay×attempt between tries, and gives up into the
// Terminated state after MaxAttempts consecutive failures. A successful
// connection resets the attempt counter.
//
// # Ordering
//
// One goroutine reads the socket; the handler is invoked exactly once
// per message, in transport delivery order, never concurrently with
// itself. The session's version counter is updated from each message
// before its handler invocation.
//
// # Sending
//
// Send stamps the outbound mutation (version, client id, timestamp) and
// writes it. Send while not Connected returns ErrNotConnected and drops
// the mutation; durable intent replay is a reconciler concern, not a
// transport one.
//
// # Terminal state
//
// Terminated — reached by Disconnect or retry exhaustion — is sticky:
// no further reconnection is scheduled until a manual Connect call
// re-arms the manager. Observers learn about it through State() or the
// OnStateChange callback, which is the "sync degraded" signal surfaced
// to users.
package conn
