// Package websocket mirrors forwarded input events to a WebSocket endpoint
// as JSON text frames.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("websocket")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
	sendBuffer     = 256
)

var (
	ErrClosed     = errors.New("websocket: mirror closed")
	ErrBufferFull = errors.New("websocket: send buffer full")
)

// Frame is the JSON envelope written for every event.
type Frame struct {
	Type  string      `json:"type"`
	Event event.Input `json:"event"`
}

// Mirror is a forwarding target that keeps a connection to one endpoint,
// reconnecting with backoff. Events are queued while disconnected and
// dropped once the queue is full.
type Mirror struct {
	url      string
	conn     *websocket.Conn
	connMu   sync.RWMutex
	done     chan struct{}
	sendChan chan []byte
	stopOnce sync.Once
	wg       sync.WaitGroup
	backoff  time.Duration
}

// New returns a mirror for rawURL (ws:// or wss://). Call Start to connect.
func New(rawURL string) (*Mirror, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("websocket: parse %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket: unsupported scheme %q", u.Scheme)
	}
	return &Mirror{
		url:      u.String(),
		done:     make(chan struct{}),
		sendChan: make(chan []byte, sendBuffer),
		backoff:  initialBackoff,
	}, nil
}

func (m *Mirror) Role() event.Role { return event.RoleStatic }
func (m *Mirror) Address() string  { return m.url }

// Start connects in the background.
func (m *Mirror) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnectLoop()
	}()
}

// Send queues ev. It never blocks.
func (m *Mirror) Send(ev event.Input) error {
	data, err := json.Marshal(Frame{Type: "input", Event: ev})
	if err != nil {
		return fmt.Errorf("websocket: marshal event: %w", err)
	}

	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.sendChan <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close sends a close frame and stops the connection loop.
func (m *Mirror) Close() error {
	m.stopOnce.Do(func() {
		close(m.done)

		m.connMu.Lock()
		if m.conn != nil {
			m.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			m.conn.Close()
			m.conn = nil
		}
		m.connMu.Unlock()

		m.wg.Wait()
		log.Info("mirror stopped", logging.KeyURL, m.url)
	})
	return nil
}

func (m *Mirror) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(m.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	m.connMu.Lock()
	select {
	case <-m.done:
		m.connMu.Unlock()
		conn.Close()
		return ErrClosed
	default:
	}
	m.conn = conn
	m.connMu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	log.Info("connected", logging.KeyURL, m.url)
	return nil
}

func (m *Mirror) reconnectLoop() {
	backoff := m.backoff

	for {
		select {
		case <-m.done:
			return
		default:
		}

		if err := m.connect(); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			log.Warn("connection failed", logging.KeyURL, m.url, logging.KeyError, err)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			select {
			case <-m.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = m.backoff

		pumpDone := make(chan struct{})
		go m.writePump(pumpDone)
		m.readPump()
		close(pumpDone)

		m.connMu.Lock()
		if m.conn != nil {
			m.conn.Close()
			m.conn = nil
		}
		m.connMu.Unlock()
	}
}

// readPump only services control frames; the mirror ignores anything the
// endpoint sends.
func (m *Mirror) readPump() {
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", logging.KeyURL, m.url, logging.KeyError, err)
			}
			return
		}
	}
}

func (m *Mirror) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-m.done:
			return

		case message := <-m.sendChan:
			conn := m.current()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write error", logging.KeyURL, m.url, logging.KeyError, err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn := m.current()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (m *Mirror) current() *websocket.Conn {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.conn
}
