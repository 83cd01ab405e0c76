package types

import "errors"

var (
	// ErrAcquireTimeout indicates the pool could not provide a connection
	// within the configured acquire timeout. Retryable by the caller.
	ErrAcquireTimeout = errors.New("connection acquire timeout")

	// ErrConnectivity indicates the database cannot be reached.
	ErrConnectivity = errors.New("database unreachable")

	// ErrInitialization indicates the startup sequence failed. The whole
	// sequence must be retried; the instance is not usable afterwards.
	ErrInitialization = errors.New("initialization failed")

	// ErrNotRunning is returned by operations that require a running subsystem.
	ErrNotRunning = errors.New("optimizer is not running")

	// ErrAlreadyRunning is returned by Initialize on a non-fresh instance.
	ErrAlreadyRunning = errors.New("optimizer already initialized")

	// ErrPoolClosed is returned by Acquire once the pool has been closed.
	ErrPoolClosed = errors.New("connection pool is closed")
)
