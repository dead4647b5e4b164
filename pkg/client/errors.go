package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when nothing listens on the daemon socket
	ErrDaemonNotRunning = errors.New("doorctl daemon not running")

	// ErrPermissionDenied is returned when the user may not open the daemon socket
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrBusy is returned when the controller cannot accept another action yet
	ErrBusy = errors.New("door controller busy, try again")
)
