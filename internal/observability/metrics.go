// Package observability exposes the simulation counters to Prometheus.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TransportCollector bundles the Prometheus metrics of the simulator. It
// implements transport.Metrics.
type TransportCollector struct {
	gatherer prometheus.Gatherer

	TickDuration  *prometheus.HistogramVec
	EventsFired   *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Passengers    *prometheus.GaugeVec
	LiveTransport prometheus.Gauge
	StreamSent    prometheus.Gauge
	StreamDropped prometheus.Gauge
}

// NewTransportCollector registers the simulator metrics against reg,
// defaulting to the global registry when nil.
func NewTransportCollector(reg prometheus.Registerer) (*TransportCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transport_tick_duration_seconds",
		Help:    "Wall time of one transport update.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"entry"}), "transport_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_events_total",
		Help: "Path events fired, labeled by arrival or departure.",
	}, []string{"kind"}), "transport_events_total")
	if err != nil {
		return nil, err
	}
	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_region_transitions_total",
		Help: "Teleport frames handled, labeled by whether the map changed.",
	}, []string{"cross"}), "transport_region_transitions_total")
	if err != nil {
		return nil, err
	}
	passengers, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transport_passengers",
		Help: "Current passengers per template, labeled by membership.",
	}, []string{"entry", "membership"}), "transport_passengers")
	if err != nil {
		return nil, err
	}
	live, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transport_live",
		Help: "Number of transports currently simulated.",
	}), "transport_live")
	if err != nil {
		return nil, err
	}
	sent, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transport_stream_sent",
		Help: "Messages sent to the stream since startup.",
	}), "transport_stream_sent")
	if err != nil {
		return nil, err
	}
	dropped, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transport_stream_dropped",
		Help: "Messages dropped by the stream since startup.",
	}), "transport_stream_dropped")
	if err != nil {
		return nil, err
	}

	return &TransportCollector{
		gatherer:      gatherer,
		TickDuration:  ticks,
		EventsFired:   events,
		Transitions:   transitions,
		Passengers:    passengers,
		LiveTransport: live,
		StreamSent:    sent,
		StreamDropped: dropped,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TransportCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TransportCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *TransportCollector) ObserveTick(entry uint32, d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.WithLabelValues(entryLabel(entry)).Observe(d.Seconds())
}

func (c *TransportCollector) EventFired(kind string) {
	if c == nil {
		return
	}
	c.EventsFired.WithLabelValues(kind).Inc()
}

func (c *TransportCollector) RegionTransition(cross bool) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(strconv.FormatBool(cross)).Inc()
}

func (c *TransportCollector) PassengersChanged(entry uint32, dynamic, static int) {
	if c == nil {
		return
	}
	label := entryLabel(entry)
	c.Passengers.WithLabelValues(label, "dynamic").Set(float64(dynamic))
	c.Passengers.WithLabelValues(label, "static").Set(float64(static))
}

// SetLive updates the live transport gauge.
func (c *TransportCollector) SetLive(count int) {
	if c == nil {
		return
	}
	c.LiveTransport.Set(float64(count))
}

// SetStreamStats mirrors the stream counters.
func (c *TransportCollector) SetStreamStats(sent, dropped uint64) {
	if c == nil {
		return
	}
	c.StreamSent.Set(float64(sent))
	c.StreamDropped.Set(float64(dropped))
}

func entryLabel(entry uint32) string {
	return strconv.FormatUint(uint64(entry), 10)
}

// register adds the collector to reg, returning the existing one when an
// identical collector was registered before.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
