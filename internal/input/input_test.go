package input

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/event"
)

var keys = Keys{Advance: event.KeySpace, Reset: event.KeyHome}

func TestParse(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		line  string
		kinds []event.Kind
		check func(t *testing.T, evs []event.Input)
	}{
		{"", []event.Kind{event.KeyDown, event.KeyUp}, func(t *testing.T, evs []event.Input) {
			if evs[0].Key != event.KeySpace {
				t.Fatalf("key = %#x, want space", evs[0].Key)
			}
		}},
		{"next", []event.Kind{event.KeyDown, event.KeyUp}, nil},
		{"HOME", []event.Kind{event.KeyDown, event.KeyUp}, func(t *testing.T, evs []event.Input) {
			if evs[1].Key != event.KeyHome {
				t.Fatalf("key = %#x, want home", evs[1].Key)
			}
		}},
		{"key a", []event.Kind{event.KeyDown, event.KeyUp}, func(t *testing.T, evs []event.Input) {
			if evs[0].Key != 'a' {
				t.Fatalf("key = %#x, want 'a'", evs[0].Key)
			}
		}},
		{"key 0xFF51", []event.Kind{event.KeyDown, event.KeyUp}, func(t *testing.T, evs []event.Input) {
			if evs[0].Key != 0xFF51 {
				t.Fatalf("key = %#x, want 0xFF51", evs[0].Key)
			}
		}},
		{"resize 1920x1080", []event.Kind{event.Resize}, func(t *testing.T, evs []event.Input) {
			if evs[0].Width != 1920 || evs[0].Height != 1080 {
				t.Fatalf("size = %dx%d", evs[0].Width, evs[0].Height)
			}
		}},
		{"click 0.5 -0.5", []event.Kind{event.PointerDown, event.PointerUp}, func(t *testing.T, evs []event.Input) {
			if evs[0].X != 0.5 || evs[0].Y != -0.5 || evs[0].Button != 1 {
				t.Fatalf("click = %+v", evs[0])
			}
		}},
		{"move 1 2", []event.Kind{event.PointerMove}, nil},
		{"user guest visitor", []event.Kind{event.User}, func(t *testing.T, evs []event.Input) {
			if evs[0].Name != "guest visitor" {
				t.Fatalf("name = %q", evs[0].Name)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			evs, err := Parse(tt.line, keys, at)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.line, err)
			}
			if len(evs) != len(tt.kinds) {
				t.Fatalf("Parse(%q) = %d events, want %d", tt.line, len(evs), len(tt.kinds))
			}
			for i, k := range tt.kinds {
				if evs[i].Kind != k {
					t.Fatalf("event %d kind = %v, want %v", i, evs[i].Kind, k)
				}
				if !evs[i].Time.Equal(at) {
					t.Fatalf("event %d time = %v, want %v", i, evs[i].Time, at)
				}
			}
			if tt.check != nil {
				tt.check(t, evs)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"jump", ErrUnknownCommand},
		{"key", ErrBadArguments},
		{"key nope", ErrBadArguments},
		{"resize 1920", ErrBadArguments},
		{"resize 0x10", ErrBadArguments},
		{"click 1", ErrBadArguments},
		{"click a b", ErrBadArguments},
		{"user", ErrBadArguments},
	}
	for _, tt := range tests {
		if _, err := Parse(tt.line, keys, time.Now()); !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) err = %v, want %v", tt.line, err, tt.want)
		}
	}
}

func TestReaderSkipsBadLines(t *testing.T) {
	var got []event.Input
	r := NewReader(strings.NewReader("next\nbogus\nresize 800x600\n"), keys, func(ev event.Input) {
		got = append(got, ev)
	})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 3 || got[2].Kind != event.Resize {
		t.Fatalf("events = %+v", got)
	}
}
