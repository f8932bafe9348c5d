// Package controlsink keeps at most one control-sink forwarding target alive,
// always the most recently discovered one.
package controlsink

import (
	"errors"
	"fmt"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/forwarding"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("controlsink")

// ErrSinkUnavailable is returned when a discovered sink cannot be opened.
// The condition is reported as status text and is never fatal.
var ErrSinkUnavailable = errors.New("controlsink: sink unavailable")

// Opener builds a forwarding target for a discovered sink address.
type Opener interface {
	OpenSink(host string, port uint16) (forwarding.Target, error)
}

// Registry is the subset of forwarding.Registry the manager drives.
type Registry interface {
	Register(t forwarding.Target) error
	ClearRole(role event.Role) int
}

// Manager owns the control-sink slot of the forwarding registry.
type Manager struct {
	registry   Registry
	opener     Opener
	advanceKey event.Key
	width      int
	height     int
	active     forwarding.Target
	now        func() time.Time
}

// Options configures a Manager.
type Options struct {
	AdvanceKey event.Key
	Width      int
	Height     int
}

// NewManager returns a manager that installs sinks built by opener into registry.
func NewManager(registry Registry, opener Opener, opts Options) *Manager {
	if opts.AdvanceKey == 0 {
		opts.AdvanceKey = event.KeySpace
	}
	return &Manager{
		registry:   registry,
		opener:     opener,
		advanceKey: opts.AdvanceKey,
		width:      opts.Width,
		height:     opts.Height,
		now:        time.Now,
	}
}

// HandleAppeared replaces any current sink with one for host:port. The old
// sink is removed and closed before the new one is opened, so the two never
// receive traffic together. On failure the slot stays empty.
func (m *Manager) HandleAppeared(host string, port uint16) error {
	m.clear()

	addr := event.JoinAddress(host, port)
	target, err := m.opener.OpenSink(host, port)
	if err != nil {
		log.Warn("could not open control sink", logging.KeyAddress, addr, logging.KeyError, err)
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, addr, err)
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrSinkUnavailable, addr)
	}

	if err := m.registry.Register(target); err != nil {
		// Only reachable if something else registered a control sink
		// behind our back; the slot was cleared above.
		if cerr := target.Close(); cerr != nil {
			log.Debug("control sink close failed", logging.KeyAddress, addr, logging.KeyError, cerr)
		}
		return fmt.Errorf("register control sink %s: %w", addr, err)
	}
	m.active = target

	log.Info("sending events to control sink", logging.KeyAddress, target.Address())
	m.burst(target)
	return nil
}

// HandleDisappeared drops the current sink, if any.
func (m *Manager) HandleDisappeared() {
	m.clear()
}

// SendInit repeats the initialization burst to the current sink.
func (m *Manager) SendInit() {
	if m.active == nil {
		return
	}
	m.burst(m.active)
}

// SetGeometry records the presentation surface size used by later bursts.
func (m *Manager) SetGeometry(width, height int) {
	m.width, m.height = width, height
}

// Geometry returns the surface size the next burst will announce.
func (m *Manager) Geometry() (int, int) {
	return m.width, m.height
}

// Serving reports whether the current sink is host:port.
func (m *Manager) Serving(host string, port uint16) bool {
	return m.active != nil && m.active.Address() == event.JoinAddress(host, port)
}

// Active returns the current sink.
func (m *Manager) Active() (forwarding.Target, bool) {
	return m.active, m.active != nil
}

func (m *Manager) clear() {
	if n := m.registry.ClearRole(event.RoleControlSink); n > 0 {
		log.Info("control sink removed", "count", n)
	}
	m.active = nil
}

// burst tells a freshly attached sink the current surface geometry and
// nudges it with one advance key press. It goes to the sink only, not
// through the registry, so other targets do not see it.
func (m *Manager) burst(t forwarding.Target) {
	now := m.now()
	events := []event.Input{event.ResizeTo(m.width, m.height, now)}
	press := event.KeyPress(m.advanceKey, now)
	events = append(events, press[:]...)

	for _, ev := range events {
		if err := t.Send(ev); err != nil {
			log.Debug("init burst send failed", logging.KeyAddress, t.Address(), "kind", ev.Kind.String(), logging.KeyError, err)
		}
	}
}
