// Package inbox implements message ingestion, dispatch and the conversation views
// on top of the stores.
package inbox

import "errors"

// Error kinds returned by the inbox services. Callers match them with errors.Is;
// anything else is an internal failure.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrNotFound       = errors.New("not found")
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrConflict marks a lost creation race. It is absorbed by re-reading and never returned.
	ErrConflict = errors.New("conflict")
)
