package event

import (
	"errors"
	"testing"
	"time"
)

func TestDiscoveryValidate(t *testing.T) {
	tests := []struct {
		name string
		ev   Discovery
		want error
	}{
		{"appeared complete", Discovery{Role: RoleContentServer, Action: Appeared, Host: "10.0.0.1", Port: 8080}, nil},
		{"appeared no host", Discovery{Role: RoleControlSink, Action: Appeared, Port: 9000}, ErrMissingHost},
		{"appeared no port", Discovery{Role: RoleControlSink, Action: Appeared, Host: "10.0.0.1"}, ErrMissingPort},
		{"disappeared role only", Discovery{Role: RoleControlSink, Action: Disappeared}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Validate(); !errors.Is(got, tt.want) {
				t.Fatalf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddressBracketsIPv6(t *testing.T) {
	d := Discovery{Host: "fe80::1", Port: 9000}
	if got := d.Address(); got != "[fe80::1]:9000" {
		t.Fatalf("Address() = %q, want [fe80::1]:9000", got)
	}
}

func TestKeyPressPair(t *testing.T) {
	now := time.Unix(100, 0)
	pair := KeyPress(KeySpace, now)
	if pair[0].Kind != KeyDown || pair[1].Kind != KeyUp {
		t.Fatalf("KeyPress kinds = %v,%v, want key_down,key_up", pair[0].Kind, pair[1].Kind)
	}
	if pair[0].Key != KeySpace || pair[1].Key != KeySpace {
		t.Fatalf("KeyPress keys = %v,%v, want space", pair[0].Key, pair[1].Key)
	}
}

func TestStringers(t *testing.T) {
	if RoleControlSink.String() != "control-sink" {
		t.Fatalf("RoleControlSink = %q", RoleControlSink.String())
	}
	if Role(42).String() != "unknown" {
		t.Fatalf("Role(42) = %q, want unknown", Role(42).String())
	}
	if Resize.String() != "resize" {
		t.Fatalf("Resize = %q", Resize.String())
	}
	d := Discovery{Role: RoleContentServer, Action: Disappeared}
	if d.String() != "content-server disappeared" {
		t.Fatalf("String() = %q", d.String())
	}
}
