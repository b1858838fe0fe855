// Package task implements the one-directional message channel that every
// background operation reports through. A worker owns a Sender, the UI loop
// owns the matching Handle and polls it without blocking. Once a worker has
// sent its terminal message it closes the Sender and nothing else arrives.
package task

import (
	"github.com/google/uuid"
)

// bufferSize bounds the in-flight message queue per task. A consumer that
// stops draining eventually blocks the worker's send; workers are I/O bound
// so this never shows up in practice, and per-sender ordering is unaffected.
const bufferSize = 256

// Handle is the consumer side of a task's channel. Dropping a handle stops
// observation only — the worker keeps running to its natural end.
type Handle[T any] struct {
	id string
	ch <-chan T
}

// Sender is the worker side. It is safe to share one Sender between multiple
// goroutines (e.g. the stdout and stderr readers of a supervised process);
// each goroutine's own sends are delivered in order.
type Sender[T any] struct {
	ch chan<- T
}

// New creates a connected Sender/Handle pair for a fresh task.
func New[T any]() (*Sender[T], *Handle[T]) {
	ch := make(chan T, bufferSize)
	return &Sender[T]{ch: ch}, &Handle[T]{id: uuid.NewString(), ch: ch}
}

// ID returns the task's identity, used for display only.
func (h *Handle[T]) ID() string {
	return h.id
}

// TryRecv returns the next pending message, or ok=false if nothing is
// queued this tick (or the task has finished and the channel is drained).
// It never blocks.
func (h *Handle[T]) TryRecv() (msg T, ok bool) {
	select {
	case msg, ok = <-h.ch:
		return msg, ok
	default:
		var zero T
		return zero, false
	}
}

// Recv blocks until a message arrives. ok=false means the channel is closed
// and fully drained. Used by the headless CLI paths; the TUI only ever polls.
func (h *Handle[T]) Recv() (msg T, ok bool) {
	msg, ok = <-h.ch
	return msg, ok
}

// Send delivers one message to the consumer.
func (s *Sender[T]) Send(msg T) {
	s.ch <- msg
}

// Close marks the task finished. Call exactly once, after the terminal
// message.
func (s *Sender[T]) Close() {
	close(s.ch)
}
