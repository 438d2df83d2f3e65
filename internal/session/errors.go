package session

import "errors"

// ErrSessionActive is returned when an operation requires no running
// session but one is in progress.
var ErrSessionActive = errors.New("session already running")
