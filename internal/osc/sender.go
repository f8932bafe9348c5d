// Package osc sends input events to control sinks as osgGA style OSC
// messages over UDP.
package osc

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/forwarding"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("osc")

var (
	ErrClosed      = errors.New("osc: sender closed")
	ErrUnsupported = errors.New("osc: unsupported event kind")
)

// Message maps an input event to its OSC message.
func Message(ev event.Input) (*osc.Message, error) {
	switch ev.Kind {
	case event.Resize:
		return osc.NewMessage("/osgga/resize", int32(0), int32(0), int32(ev.Width), int32(ev.Height)), nil
	case event.KeyDown:
		return osc.NewMessage("/osgga/key/press", int32(ev.Key)), nil
	case event.KeyUp:
		return osc.NewMessage("/osgga/key/release", int32(ev.Key)), nil
	case event.PointerDown:
		return osc.NewMessage("/osgga/mouse/press", ev.X, ev.Y, int32(ev.Button)), nil
	case event.PointerUp:
		return osc.NewMessage("/osgga/mouse/release", ev.X, ev.Y, int32(ev.Button)), nil
	case event.PointerMove:
		return osc.NewMessage("/osgga/mouse/motion", ev.X, ev.Y), nil
	case event.User:
		return osc.NewMessage("/osgga/user", ev.Name), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, ev.Kind)
}

// Sender is a forwarding target for one OSC receiver.
type Sender struct {
	role    event.Role
	address string
	client  *osc.Client

	mu     sync.Mutex
	closed bool
}

// Open resolves host:port and returns a sender for it. UDP has no handshake,
// so an unreachable receiver only shows up as failed sends.
func Open(role event.Role, host string, port uint16) (*Sender, error) {
	address := event.JoinAddress(host, port)
	udp, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("osc: resolve %s: %w", address, err)
	}
	log.Info("opened osc device", logging.KeyRole, role.String(), logging.KeyAddress, address)
	return &Sender{
		role:    role,
		address: address,
		client:  osc.NewClient(udp.IP.String(), udp.Port),
	}, nil
}

func (s *Sender) Role() event.Role { return s.role }
func (s *Sender) Address() string  { return s.address }

func (s *Sender) Send(ev event.Input) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg, err := Message(ev)
	if err != nil {
		return err
	}
	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("osc: send to %s: %w", s.address, err)
	}
	return nil
}

// Close stops the sender. Later sends fail with ErrClosed.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Opener opens control sinks as OSC senders.
type Opener struct {
	Role event.Role
}

func (o Opener) OpenSink(host string, port uint16) (forwarding.Target, error) {
	s, err := Open(o.Role, host, port)
	if err != nil {
		return nil, err
	}
	return s, nil
}
