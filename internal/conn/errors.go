package conn

import "errors"

// Errors returned by Manager operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, conn.ErrNotConnected) {
//	    // the intent was dropped, not queued
//	}
var (
	// ErrNotConnected is returned by Send when the connection is not in
	// the Connected state. The message is dropped, never queued.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect while a previous
	// Connect is still running (including its reconnection loop).
	ErrAlreadyConnected = errors.New("connection already running")
)
