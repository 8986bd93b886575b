package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrServerBusy      = errors.New("server is busy: too many submissions in flight")
	ErrShuttingDown    = errors.New("server is shutting down")
)
