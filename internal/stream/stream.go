// Package stream pushes visibility notices, transport poses and path
// events to a viewer service over a WebSocket.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
	"github.com/OCAP2/transport/pkg/streaming"
)

const goodbyeTimeout = 2 * time.Second

// Config holds the stream connection settings.
type Config struct {
	URL       string
	Secret    string
	SessionID string
	Version   string
}

// Fleet lists the live transports. Their current poses are replayed to
// the viewer after a reconnect.
type Fleet interface {
	Statuses() []transport.Status
}

// Broadcaster implements world.Observer on top of a WebSocket connection.
// Only transport moves are streamed; passengers are placed by viewers from
// their offsets.
type Broadcaster struct {
	link *link
	cfg  Config

	mu    sync.Mutex
	hello []byte
	fleet Fleet

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates a broadcaster. Nothing is sent before Init.
func New(cfg Config, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		link: newLink(logger.With("component", "stream")),
		cfg:  cfg,
	}
	b.link.onDrop = func() { b.dropped.Add(1) }
	b.link.resync = b.resync
	return b
}

// Init connects and opens the session. It waits for the server to
// acknowledge the hello.
func (b *Broadcaster) Init() error {
	data, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{
		SessionID: b.cfg.SessionID,
		Version:   b.cfg.Version,
	})
	if err != nil {
		return err
	}
	if err := b.link.open(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	b.mu.Lock()
	b.hello = data
	b.mu.Unlock()

	return b.link.request(data, streaming.TypeHello, ackTimeout)
}

// Track sets the fleet replayed after a reconnect.
func (b *Broadcaster) Track(f Fleet) {
	b.mu.Lock()
	b.fleet = f
	b.mu.Unlock()
}

// resync returns the hello followed by one position message per live
// transport, ordered by GUID.
func (b *Broadcaster) resync() [][]byte {
	b.mu.Lock()
	hello, fleet := b.hello, b.fleet
	b.mu.Unlock()

	var msgs [][]byte
	if hello != nil {
		msgs = append(msgs, hello)
	}
	if fleet == nil {
		return msgs
	}
	for _, s := range fleet.Statuses() {
		data, err := marshalEnvelope(streaming.TypePosition, streaming.PositionPayload{
			MapID:   s.MapID,
			Subject: s.GUID.String(),
			Pose:    streaming.PoseOf(s.Position),
		})
		if err != nil {
			b.link.logger.Error("Failed to encode resync pose", "transport", s.GUID.String(), "error", err)
			continue
		}
		msgs = append(msgs, data)
	}
	return msgs
}

// Close says goodbye and disconnects.
func (b *Broadcaster) Close() error {
	if data, err := marshalEnvelope(streaming.TypeGoodbye, streaming.HelloPayload{SessionID: b.cfg.SessionID}); err == nil {
		_ = b.link.request(data, streaming.TypeGoodbye, goodbyeTimeout)
	}
	return b.link.close()
}

// Stats returns the number of queued and dropped messages.
func (b *Broadcaster) Stats() (sent, dropped uint64) {
	return b.sent.Load(), b.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload and pushes it to the write loop
// (fire-and-forget).
func (b *Broadcaster) sendEnvelope(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		b.link.logger.Error("Failed to encode stream message", "type", msgType, "error", err)
		return
	}
	b.sent.Add(1)
	b.link.enqueue(data)
}

func (b *Broadcaster) Created(mapID uint32, viewer core.GUID, subject transport.Entity) {
	p := streaming.CreatePayload{
		MapID:   mapID,
		Viewer:  viewer.String(),
		Subject: subject.GUID().String(),
		Kind:    subject.TypeID().String(),
		Pose:    streaming.PoseOf(subject.Position()),
	}
	if t, ok := subject.(*transport.Transport); ok {
		p.Entry = t.Entry()
		p.Name = t.Name()
		p.Meta = t.Template().Info.Meta
	} else if e, ok := subject.(interface{ Entry() uint32 }); ok {
		p.Entry = e.Entry()
	}
	b.sendEnvelope(streaming.TypeCreate, p)
}

func (b *Broadcaster) OutOfRange(mapID uint32, viewer, subject core.GUID) {
	b.sendEnvelope(streaming.TypeOutOfRange, streaming.OutOfRangePayload{
		MapID:   mapID,
		Viewer:  viewer.String(),
		Subject: subject.String(),
	})
}

func (b *Broadcaster) Teleported(mapID uint32, player core.GUID, pos core.Position) {
	b.sendEnvelope(streaming.TypeTeleport, streaming.TeleportPayload{
		MapID:  mapID,
		Player: player.String(),
		Pose:   streaming.PoseOf(pos),
	})
}

func (b *Broadcaster) Transferred(player core.GUID, from, to uint32, pos core.Position) {
	b.sendEnvelope(streaming.TypeTransfer, streaming.TransferPayload{
		Player: player.String(),
		From:   from,
		To:     to,
		Pose:   streaming.PoseOf(pos),
	})
}

func (b *Broadcaster) Moved(mapID uint32, subject core.GUID, pos core.Position) {
	if subject.Type() != core.TypeTransport {
		return
	}
	b.sendEnvelope(streaming.TypePosition, streaming.PositionPayload{
		MapID:   mapID,
		Subject: subject.String(),
		Pose:    streaming.PoseOf(pos),
	})
}

// Events wraps an event dispatcher so every arrival and departure event is
// streamed before it is dispatched. next may be nil.
func (b *Broadcaster) Events(next transport.EventDispatcher) transport.EventDispatcher {
	return &eventTee{b: b, next: next}
}

type eventTee struct {
	b    *Broadcaster
	next transport.EventDispatcher
}

func (e *eventTee) Dispatch(ev dispatcher.Event) (any, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.b.sendEnvelope(streaming.TypePathEvent, streaming.PathEventPayload{
		EventID:   ev.ID,
		Kind:      ev.Kind.String(),
		Transport: ev.Transport.String(),
		Entry:     ev.Entry,
		MapID:     ev.MapID,
		Pose:      streaming.PoseOf(ev.Position),
		Timestamp: ev.Timestamp.UnixMilli(),
	})
	if e.next == nil {
		return nil, fmt.Errorf("event %d: %w", ev.ID, dispatcher.ErrNoHandler)
	}
	return e.next.Dispatch(ev)
}
