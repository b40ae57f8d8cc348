// Package monitor periodically samples the live transports and publishes
// the snapshot to a status file, InfluxDB and Prometheus.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/transport/internal/influx"
	"github.com/OCAP2/transport/internal/observability"
	"github.com/OCAP2/transport/internal/transport"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// StatusSource lists the live transports.
type StatusSource interface {
	Statuses() []transport.Status
}

// PointWriter accepts time series points.
type PointWriter interface {
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// StreamStats reports the broadcaster counters.
type StreamStats interface {
	Stats() (sent, dropped uint64)
}

// Dependencies holds all dependencies for the monitor service. Everything
// but Transports is optional.
type Dependencies struct {
	Transports StatusSource
	Points     PointWriter
	Bucket     string
	Stream     StreamStats
	Metrics    *observability.TransportCollector
	StatusPath string
	Interval   time.Duration
	SessionID  string
	Logger     *slog.Logger
}

// TransportReport is one line of the status file.
type TransportReport struct {
	GUID       string  `json:"guid"`
	Entry      uint32  `json:"entry"`
	Name       string  `json:"name"`
	MapID      uint32  `json:"mapId"`
	InstanceID uint32  `json:"instanceId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	O          float64 `json:"o"`
	State      string  `json:"state"`
	Frame      int     `json:"frame"`
	Timer      uint32  `json:"timer"`
	Period     uint32  `json:"period"`
	Dynamic    int     `json:"dynamic"`
	Static     int     `json:"static"`
}

// Report is one sample.
type Report struct {
	Time          time.Time         `json:"time"`
	SessionID     string            `json:"sessionId"`
	Transports    []TransportReport `json:"transports"`
	StreamSent    uint64            `json:"streamSent"`
	StreamDropped uint64            `json:"streamDropped"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample takes a snapshot of every live transport.
func (s *Service) Sample(now time.Time) Report {
	return s.report(s.deps.Transports.Statuses(), now)
}

func (s *Service) report(statuses []transport.Status, now time.Time) Report {
	r := Report{
		Time:       now,
		SessionID:  s.deps.SessionID,
		Transports: make([]TransportReport, 0, len(statuses)),
	}
	for _, st := range statuses {
		r.Transports = append(r.Transports, TransportReport{
			GUID:       st.GUID.String(),
			Entry:      st.Entry,
			Name:       st.Name,
			MapID:      st.MapID,
			InstanceID: st.InstanceID,
			X:          st.Position.X,
			Y:          st.Position.Y,
			Z:          st.Position.Z,
			O:          st.Position.O,
			State:      st.State.String(),
			Frame:      st.Frame,
			Timer:      st.Timer,
			Period:     st.Period,
			Dynamic:    st.Dynamic,
			Static:     st.Static,
		})
	}
	if s.deps.Stream != nil {
		r.StreamSent, r.StreamDropped = s.deps.Stream.Stats()
	}
	return r
}

// Publish takes one sample and hands it to every configured sink. Sink
// failures are logged and the remaining sinks still run.
func (s *Service) Publish(now time.Time) Report {
	logger := s.deps.Logger
	statuses := s.deps.Transports.Statuses()
	r := s.report(statuses, now)

	if s.deps.StatusPath != "" {
		if err := writeStatusFile(s.deps.StatusPath, r); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Points != nil {
		for _, st := range statuses {
			p := influx.StatusPoint(st, s.deps.SessionID, now)
			if err := s.deps.Points.WritePoint(s.deps.Bucket, p); err != nil {
				logger.Error("Error writing status point", "error", err, "entry", st.Entry)
				break
			}
		}
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.SetLive(len(statuses))
		s.deps.Metrics.SetStreamStats(r.StreamSent, r.StreamDropped)
	}
	return r
}

func writeStatusFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		t := time.NewTicker(s.deps.Interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-t.C:
				s.Publish(now)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		select {
		case <-s.stopChan:
		default:
			close(s.stopChan)
		}
	}
}
