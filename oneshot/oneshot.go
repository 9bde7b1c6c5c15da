package oneshot

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrEmpty is returned by TryRecv while no value has arrived yet.
	ErrEmpty = errors.New("oneshot: no value available yet")

	// ErrClosed is returned by TryRecv when the sender was dropped without sending.
	ErrClosed = errors.New("oneshot: sender dropped without sending a value")

	// ErrExhausted is the panic value raised when TryRecv is called after the value was taken.
	ErrExhausted = errors.New("oneshot: value already received")

	// ErrAlreadySent is the panic value raised when Send is called more than once.
	ErrAlreadySent = errors.New("oneshot: value already sent")
)

const (
	stateEmpty uint32 = iota
	stateWriting
	stateSent
	stateClosed
	stateTaken
)

// channel is the shared cell behind a Sender/Receiver pair. The payload slot
// is only written while state is stateWriting and only read after a
// successful stateSent to stateTaken transition.
type channel[T any] struct {
	state   atomic.Uint32
	dropped atomic.Bool
	value   T
	ready   chan struct{}
}

// Sender is the producing end of a oneshot channel.
type Sender[T any] struct {
	ch *channel[T]
}

// Receiver is the consuming end of a oneshot channel.
type Receiver[T any] struct {
	ch *channel[T]
}

// New creates a linked Sender and Receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	ch := &channel[T]{ready: make(chan struct{})}
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// Send delivers v to the receiver. It returns false when the receiver has
// already been dropped, in which case v is discarded. Send panics with
// ErrAlreadySent if the sender already sent or closed.
func (s *Sender[T]) Send(v T) bool {
	if !s.ch.state.CompareAndSwap(stateEmpty, stateWriting) {
		panic(ErrAlreadySent)
	}

	if s.ch.dropped.Load() {
		s.ch.state.Store(stateClosed)
		close(s.ch.ready)
		return false
	}

	s.ch.value = v
	s.ch.state.Store(stateSent)
	close(s.ch.ready)
	return true
}

// Close drops the sender. If nothing was sent the receiver observes ErrClosed.
// Closing after a successful Send is a no-op.
func (s *Sender[T]) Close() {
	if s.ch.state.CompareAndSwap(stateEmpty, stateClosed) {
		close(s.ch.ready)
	}
}

// TryRecv polls for the value without blocking. It returns ErrEmpty while the
// sender has not finished, the value once, or ErrClosed if the sender was
// dropped without sending. Calling TryRecv after the value has been taken
// panics with ErrExhausted.
func (r *Receiver[T]) TryRecv() (T, error) {
	var zero T

	switch r.ch.state.Load() {
	case stateEmpty, stateWriting:
		return zero, ErrEmpty
	case stateClosed:
		return zero, ErrClosed
	case stateTaken:
		panic(ErrExhausted)
	}

	if !r.ch.state.CompareAndSwap(stateSent, stateTaken) {
		panic(ErrExhausted)
	}

	v := r.ch.value
	r.ch.value = zero
	return v, nil
}

// Ready returns a channel that is closed once a value was sent or the sender
// was dropped.
func (r *Receiver[T]) Ready() <-chan struct{} {
	return r.ch.ready
}

// Close drops the receiver. A later Send discards its value, and a value that
// was already sent but not received is released.
func (r *Receiver[T]) Close() {
	r.ch.dropped.Store(true)
	if r.ch.state.CompareAndSwap(stateSent, stateTaken) {
		var zero T
		r.ch.value = zero
	}
}
