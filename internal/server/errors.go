package server

import "errors"

// ErrShutdownTimeout is the sentinel wrapped when Stop's grace period
// elapses before every in-flight connection/goroutine has exited.
var ErrShutdownTimeout = errors.New("server: shutdown timeout")
