// Package dispatcher routes transport arrival and departure events to the
// script handlers registered for their event ids.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/OCAP2/transport/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName scopes the event counters of every dispatcher.
const meterName = "github.com/OCAP2/transport/internal/dispatcher"

var (
	ErrNoHandler = errors.New("no handler registered")
	ErrQueueFull = errors.New("queue full")
)

// Kind tells whether an event fired on arrival at or departure from a frame.
type Kind uint8

const (
	Arrival Kind = iota
	Departure
)

func (k Kind) String() string {
	if k == Departure {
		return "departure"
	}
	return "arrival"
}

// Event is a path event fired by a transport.
type Event struct {
	ID        uint32
	Kind      Kind
	Transport core.GUID
	Entry     uint32
	MapID     uint32
	Position  core.Position
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Transports on
// different maps dispatch concurrently.
type Dispatcher struct {
	hmu      sync.RWMutex
	handlers map[uint32]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	unhandled metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[uint32]chan Event
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[uint32]HandlerFunc),
		buffers:  make(map[uint32]chan Event),
		logger:   logger,
	}

	m := otel.Meter(meterName)

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for id, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(eventAttr(id)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.unhandled, err = m.Int64Counter(
		"dispatcher.events.unhandled",
		metric.WithDescription("Total events without a registered handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unhandled counter: %w", err)
	}

	return d, nil
}

func eventAttr(id uint32) attribute.KeyValue {
	return attribute.String("event", strconv.FormatUint(uint64(id), 10))
}

// Register adds a handler for the given event id with optional configuration.
func (d *Dispatcher) Register(id uint32, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(id, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(id, handler)
	}

	d.hmu.Lock()
	d.handlers[id] = handler
	d.hmu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.hmu.RLock()
	h, ok := d.handlers[e.ID]
	d.hmu.RUnlock()
	if !ok {
		d.unhandled.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", e.Kind.String())))
		return nil, fmt.Errorf("event %d: %w", e.ID, ErrNoHandler)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the event id.
func (d *Dispatcher) HasHandler(id uint32) bool {
	d.hmu.RLock()
	defer d.hmu.RUnlock()
	_, ok := d.handlers[id]
	return ok
}

func (d *Dispatcher) withBuffer(id uint32, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[id] = buffer
	d.mu.Unlock()

	attr := eventAttr(id)

	go func() {
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered event failed", "event", id, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(attr))
		}
	}()

	if blocking {
		return func(e Event) (any, error) {
			buffer <- e
			return "queued", nil
		}
	}

	return func(e Event) (any, error) {
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(attr))
			return nil, fmt.Errorf("event %d: %w", id, ErrQueueFull)
		}
	}
}

func (d *Dispatcher) withLogging(id uint32, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "event", id, "kind", e.Kind.String(), "transport", e.Transport.String())

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "event", id, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "event", id, "duration", time.Since(start))
		}

		return result, err
	}
}
