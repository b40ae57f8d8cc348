package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/OCAP2/transport/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	queueSize  = 10_000
	ackBuffer  = 16
	writeWait  = 10 * time.Second
	ackTimeout = 10 * time.Second
)

// link is the broadcaster's WebSocket. One goroutine writes queued
// messages and another routes acks. After a reconnect the resync messages
// are written before queued traffic resumes, so a viewer that lost the
// stream gets the session and every transport's pose back first.
type link struct {
	target *url.URL
	logger *slog.Logger

	queue chan []byte
	acks  chan streaming.AckMessage
	done  chan struct{}

	mu     sync.Mutex
	conn   *ws.Conn
	closed bool

	resync   func() [][]byte
	onDrop   func()
	retries  int
	minDelay time.Duration
	maxDelay time.Duration
}

func newLink(logger *slog.Logger) *link {
	return &link{
		logger:   logger,
		queue:    make(chan []byte, queueSize),
		acks:     make(chan streaming.AckMessage, ackBuffer),
		done:     make(chan struct{}),
		resync:   func() [][]byte { return nil },
		onDrop:   func() {},
		retries:  10,
		minDelay: time.Second,
		maxDelay: 30 * time.Second,
	}
}

// open dials the viewer and starts serving the connection. The secret is
// passed as a query parameter.
func (l *link) open(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	l.target = u

	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.serve(conn)
	return nil
}

func (l *link) dial() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(l.target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (l *link) serve(conn *ws.Conn) {
	go l.writeLoop(conn)
	go l.readLoop(conn)
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (l *link) current(conn *ws.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn == conn
}

func (l *link) shuttingDown() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// writeLoop serves conn until it fails, is replaced or the link closes.
func (l *link) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-l.done:
			return
		case data := <-l.queue:
			if !l.current(conn) {
				l.enqueue(data)
				return
			}
			if err := write(conn, data); err != nil {
				l.logger.Warn("Stream write failed", "error", err)
				go l.redial(conn)
				return
			}
		}
	}
}

// readLoop routes acks to request. Anything else from the viewer is ignored.
func (l *link) readLoop(conn *ws.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !l.shuttingDown() {
				l.logger.Warn("Stream read failed", "error", err)
				go l.redial(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if json.Unmarshal(msg, &ack) != nil || ack.Type != "ack" {
			l.logger.Debug("Ignoring viewer message", "raw", string(msg))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial replaces a failed connection. Only the first caller for a given
// connection redials; the delay doubles after every attempt.
func (l *link) redial(failed *ws.Conn) {
	l.mu.Lock()
	if l.closed || l.conn != failed {
		l.mu.Unlock()
		return
	}
	_ = failed.Close()
	l.conn = nil
	l.mu.Unlock()

	delay := l.minDelay
	for attempt := 1; attempt <= l.retries; attempt++ {
		select {
		case <-l.done:
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, l.maxDelay)

		conn, err := l.dial()
		if err != nil {
			l.logger.Warn("Stream redial failed", "attempt", attempt, "error", err)
			continue
		}
		msgs := l.resync()
		if err := l.replay(conn, msgs); err != nil {
			l.logger.Warn("Stream resync failed", "attempt", attempt, "error", err)
			_ = conn.Close()
			continue
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		l.conn = conn
		l.mu.Unlock()

		l.logger.Info("Stream reconnected", "attempt", attempt, "resynced", len(msgs))
		l.serve(conn)
		return
	}
	l.logger.Error("Stream lost, giving up", "attempts", l.retries)
}

func (l *link) replay(conn *ws.Conn, msgs [][]byte) error {
	for _, data := range msgs {
		if err := write(conn, data); err != nil {
			return err
		}
	}
	return nil
}

// enqueue hands data to the write loop without blocking the caller's
// tick. Messages are dropped when the queue is full.
func (l *link) enqueue(data []byte) {
	select {
	case l.queue <- data:
	default:
		l.onDrop()
		l.logger.Warn("Stream queue full, dropping message")
	}
}

// request enqueues data and waits for the viewer to ack ackFor.
func (l *link) request(data []byte, ackFor string, timeout time.Duration) error {
	l.enqueue(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-l.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-l.done:
			return fmt.Errorf("stream closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops both loops. It is idempotent.
func (l *link) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	return conn.Close()
}
