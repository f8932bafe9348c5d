// Package event holds the value types that flow through the player: discovery
// notifications from the zeroconf transport and input events from the host.
package event

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Role identifies which part of the system a discovered service or a
// forwarding target serves.
type Role int

const (
	RoleContentServer Role = iota
	RoleControlSink
	RoleStatic
)

var roleNames = map[Role]string{
	RoleContentServer: "content-server",
	RoleControlSink:   "control-sink",
	RoleStatic:        "static",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// Action says whether a service came or went.
type Action int

const (
	Appeared Action = iota
	Disappeared
)

func (a Action) String() string {
	switch a {
	case Appeared:
		return "appeared"
	case Disappeared:
		return "disappeared"
	default:
		return "unknown"
	}
}

var (
	ErrMissingHost = errors.New("event: appeared event without host")
	ErrMissingPort = errors.New("event: appeared event without port")
)

// Discovery is a single service appeared/disappeared notification. It is
// consumed exactly once by the session controller and never stored.
type Discovery struct {
	Role     Role
	Action   Action
	Host     string
	Port     uint16
	Instance string
	// Repeat marks a periodic re-announcement of an instance that was
	// already reported and has not changed.
	Repeat bool
}

// Validate reports whether the event carries the fields its action requires.
// Disappeared events only need a role.
func (d Discovery) Validate() error {
	if d.Action != Appeared {
		return nil
	}
	if d.Host == "" {
		return ErrMissingHost
	}
	if d.Port == 0 {
		return ErrMissingPort
	}
	return nil
}

// Address returns host:port, bracketing IPv6 literals.
func (d Discovery) Address() string {
	return JoinAddress(d.Host, d.Port)
}

func (d Discovery) String() string {
	if d.Action == Disappeared && d.Host == "" {
		return fmt.Sprintf("%s %s", d.Role, d.Action)
	}
	if d.Repeat {
		return fmt.Sprintf("%s %s %s (repeat)", d.Role, d.Action, d.Address())
	}
	return fmt.Sprintf("%s %s %s", d.Role, d.Action, d.Address())
}

// JoinAddress formats host and port the way forwarding targets are keyed.
func JoinAddress(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// Kind classifies an input event.
type Kind int

const (
	KeyDown Kind = iota
	KeyUp
	PointerDown
	PointerMove
	PointerUp
	Resize
	User
)

var kindNames = map[Kind]string{
	KeyDown:     "key_down",
	KeyUp:       "key_up",
	PointerDown: "pointer_down",
	PointerMove: "pointer_move",
	PointerUp:   "pointer_up",
	Resize:      "resize",
	User:        "user",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Key is a key code. Values match osgGA so OSC receivers built on it
// interpret forwarded keys without a translation table.
type Key int

const (
	KeySpace Key = 0x20
	KeyHome  Key = 0xFF50
)

// Input is one raw input or control event delivered by the host.
type Input struct {
	Kind   Kind      `json:"kind"`
	Key    Key       `json:"key,omitempty"`
	X      float32   `json:"x,omitempty"`
	Y      float32   `json:"y,omitempty"`
	Button int       `json:"button,omitempty"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
	Name   string    `json:"name,omitempty"`
	Time   time.Time `json:"time"`
}

// KeyPress returns the down/up pair for key.
func KeyPress(key Key, at time.Time) [2]Input {
	return [2]Input{
		{Kind: KeyDown, Key: key, Time: at},
		{Kind: KeyUp, Key: key, Time: at},
	}
}

// ResizeTo returns a viewport notification for a w x h surface.
func ResizeTo(w, h int, at time.Time) Input {
	return Input{Kind: Resize, Width: w, Height: h, Time: at}
}
