package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/forwarding"
)

var _ forwarding.Target = (*Mirror)(nil)

func newEndpoint(t *testing.T) (string, <-chan Frame) {
	t.Helper()
	frames := make(chan Frame, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err == nil {
				frames <- f
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func TestNewRejectsOtherSchemes(t *testing.T) {
	for _, u := range []string{"http://example.com", "osc://10.0.0.1:7000", "::"} {
		if _, err := New(u); err == nil {
			t.Errorf("New(%q) succeeded", u)
		}
	}
}

func TestMirrorForwardsEvents(t *testing.T) {
	url, frames := newEndpoint(t)
	m, err := New(url)
	if err != nil {
		t.Fatal(err)
	}
	if m.Role() != event.RoleStatic || m.Address() != url {
		t.Fatalf("target = %s %s", m.Role(), m.Address())
	}

	// Queued before the connection exists.
	if err := m.Send(event.Input{Kind: event.KeyDown, Key: event.KeySpace}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	m.Start()
	defer m.Close()

	select {
	case f := <-frames:
		if f.Type != "input" || f.Event.Kind != event.KeyDown || f.Event.Key != event.KeySpace {
			t.Fatalf("frame = %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestMirrorSendAfterClose(t *testing.T) {
	m, err := New("ws://127.0.0.1:1/events")
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	if err := m.Send(event.Input{Kind: event.KeyUp}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	m.Close()
}

func TestMirrorDropsWhenBufferFull(t *testing.T) {
	m, err := New("ws://127.0.0.1:1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var last error
	for i := 0; i < sendBuffer+1; i++ {
		last = m.Send(event.Input{Kind: event.PointerMove})
	}
	if !errors.Is(last, ErrBufferFull) {
		t.Fatalf("Send on full buffer = %v, want ErrBufferFull", last)
	}
}
