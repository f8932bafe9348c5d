package osc

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/forwarding"
)

var _ forwarding.Target = (*Sender)(nil)

func TestMessage(t *testing.T) {
	tests := []struct {
		ev      event.Input
		address string
		args    []any
	}{
		{event.ResizeTo(2048, 1536, time.Time{}), "/osgga/resize", []any{int32(0), int32(0), int32(2048), int32(1536)}},
		{event.Input{Kind: event.KeyDown, Key: event.KeySpace}, "/osgga/key/press", []any{int32(0x20)}},
		{event.Input{Kind: event.KeyUp, Key: event.KeyHome}, "/osgga/key/release", []any{int32(0xFF50)}},
		{event.Input{Kind: event.PointerDown, X: 0.5, Y: -0.25, Button: 1}, "/osgga/mouse/press", []any{float32(0.5), float32(-0.25), int32(1)}},
		{event.Input{Kind: event.PointerUp, X: 1, Y: 1, Button: 3}, "/osgga/mouse/release", []any{float32(1), float32(1), int32(3)}},
		{event.Input{Kind: event.PointerMove, X: 0.1, Y: 0.2}, "/osgga/mouse/motion", []any{float32(0.1), float32(0.2)}},
		{event.Input{Kind: event.User, Name: "visitor"}, "/osgga/user", []any{"visitor"}},
	}
	for _, tt := range tests {
		msg, err := Message(tt.ev)
		if err != nil {
			t.Fatalf("Message(%v): %v", tt.ev.Kind, err)
		}
		if msg.Address != tt.address {
			t.Errorf("Message(%v).Address = %q, want %q", tt.ev.Kind, msg.Address, tt.address)
		}
		if len(msg.Arguments) != len(tt.args) {
			t.Fatalf("Message(%v) args = %v, want %v", tt.ev.Kind, msg.Arguments, tt.args)
		}
		for i := range tt.args {
			if msg.Arguments[i] != tt.args[i] {
				t.Errorf("Message(%v) arg %d = %#v, want %#v", tt.ev.Kind, i, msg.Arguments[i], tt.args[i])
			}
		}
	}
}

func TestMessageUnsupported(t *testing.T) {
	if _, err := Message(event.Input{Kind: event.Kind(99)}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Message(unknown) err = %v, want ErrUnsupported", err)
	}
}

func TestSenderDeliversOverUDP(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("udp loopback unavailable: %v", err)
	}
	defer conn.Close()
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	target, err := Opener{Role: event.RoleControlSink}.OpenSink("127.0.0.1", port)
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	if target.Role() != event.RoleControlSink || target.Address() != event.JoinAddress("127.0.0.1", port) {
		t.Fatalf("target = %s %s", target.Role(), target.Address())
	}
	if err := target.Send(event.Input{Kind: event.KeyDown, Key: event.KeySpace}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	packet, err := osc.ParsePacket(string(buf[:n]))
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	msg, ok := packet.(*osc.Message)
	if !ok || msg.Address != "/osgga/key/press" {
		t.Fatalf("packet = %#v", packet)
	}

	target.Close()
	if err := target.Send(event.Input{Kind: event.KeyUp, Key: event.KeySpace}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestOpenUnresolvable(t *testing.T) {
	if _, err := (Opener{}).OpenSink("bad host name with spaces", 7000); err == nil {
		t.Fatal("OpenSink of an unresolvable host succeeded")
	}
}
