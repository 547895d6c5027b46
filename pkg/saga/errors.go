package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by every effect of a cancelled task.
	ErrCancelled = errors.New("saga: task cancelled")
	// ErrChannelClosed is returned when receiving from a closed and drained
	// channel, or putting to a closed one.
	ErrChannelClosed = errors.New("saga: channel closed")
	// ErrChannelFull is returned by Put when no receiver waits and the buffer is full.
	ErrChannelFull = errors.New("saga: channel full")
	// ErrAlreadyRunning is returned when registering or running after Run.
	ErrAlreadyRunning = errors.New("saga: scheduler already running")
	// ErrStopped is returned by the external API once the scheduler stopped.
	ErrStopped = errors.New("saga: scheduler stopped")
	// ErrNotManualClock is returned by Advance on a wall-clock scheduler.
	ErrNotManualClock = errors.New("saga: scheduler does not use a manual clock")
	// ErrTaskNotFound is returned when cancelling an unknown or finished task.
	ErrTaskNotFound = errors.New("saga: task not found")
	// ErrTaskEnded is returned by effects issued from deferred cleanups.
	ErrTaskEnded = errors.New("saga: task ended")
)

// PanicError is the failure of a task body or Call function that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("saga: panic: %v", e.Value)
}
