package scheduler

import "errors"

var (
	// ErrCoordinatorNotRunning is returned when submitting to a stopped coordinator
	ErrCoordinatorNotRunning = errors.New("sync coordinator is not running")

	// ErrCoordinatorAlreadyRunning is returned when Start is called twice
	ErrCoordinatorAlreadyRunning = errors.New("sync coordinator is already running")

	// ErrSyncQueueFull is returned when a worker queue cannot accept more events
	ErrSyncQueueFull = errors.New("sync queue is full")
)
