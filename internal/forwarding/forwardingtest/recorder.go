// Package forwardingtest provides an in-memory forwarding target for tests.
package forwardingtest

import (
	"errors"
	"sync"

	"github.com/stmh/gsc-brain-interface/internal/event"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("forwardingtest: target closed")

// Recorder records every event it receives.
type Recorder struct {
	mu      sync.Mutex
	role    event.Role
	address string
	events  []event.Input
	closed  bool
	// FailSend makes every Send return this error when set.
	FailSend error
	// FailClose is returned by Close when set; the recorder still closes.
	FailClose error
}

// NewRecorder returns a recorder for role at address.
func NewRecorder(role event.Role, address string) *Recorder {
	return &Recorder{role: role, address: address}
}

func (r *Recorder) Role() event.Role { return r.role }
func (r *Recorder) Address() string  { return r.address }

func (r *Recorder) Send(ev event.Input) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.FailSend != nil {
		return r.FailSend
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.FailClose
}

// Events returns a copy of the received events.
func (r *Recorder) Events() []event.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Input(nil), r.events...)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
