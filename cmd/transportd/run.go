package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/OCAP2/transport/internal/config"
	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/internal/influx"
	"github.com/OCAP2/transport/internal/logging"
	"github.com/OCAP2/transport/internal/monitor"
	"github.com/OCAP2/transport/internal/observability"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/internal/storage"
	"github.com/OCAP2/transport/internal/stream"
	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/internal/world"
)

// simOptions holds the optional sinks of a simulation.
type simOptions struct {
	Sim      config.SimConfig
	Observer world.Observer
	Metrics  *observability.TransportCollector
	Points   monitor.PointWriter
	Bucket   string
	Stream   *stream.Broadcaster
}

type simulation struct {
	world      *world.Manager
	transports *transport.Manager
	events     *dispatcher.Dispatcher
}

// buildSimulation wires the world and the transport manager on top of a
// store and generates every template.
func buildSimulation(ctx context.Context, backend storage.Backend, opts simOptions) (*simulation, error) {
	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger))
	if err != nil {
		return nil, fmt.Errorf("failed to create event dispatcher: %w", err)
	}
	var events transport.EventDispatcher = d
	observers := world.Observers{}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}
	if opts.Stream != nil {
		events = opts.Stream.Events(d)
		observers = append(observers, opts.Stream)
	}

	w := world.NewManager(world.Options{
		Logger:           Logger,
		Observer:         observers,
		InstanceableMaps: opts.Sim.InstanceableMaps,
		Concurrency:      opts.Sim.ConcurrentMaps,
	})

	deps := transport.Dependencies{
		Templates:              backend,
		Spawns:                 backend,
		Regions:                w,
		Events:                 events,
		Logger:                 Logger,
		PositionUpdateInterval: opts.Sim.PositionUpdateMs,
	}
	if opts.Metrics != nil {
		deps.Metrics = opts.Metrics
	}
	tm := transport.NewManager(deps)
	if err := tm.LoadTemplates(ctx); err != nil {
		return nil, err
	}

	if opts.Points != nil {
		registerEventHandlers(d, tm.Templates(), opts.Points, opts.Bucket)
	}

	w.OnInstanceCreated(func(m *world.Map) { tm.CreateInstanceTransports(m) })
	w.OnUnload(func(m *world.Map) { tm.RemoveRegion(m) })

	return &simulation{world: w, transports: tm, events: d}, nil
}

// eventIDs returns every arrival and departure event used by the templates.
func eventIDs(templates []*path.Template) []uint32 {
	seen := make(map[uint32]struct{})
	for _, t := range templates {
		for i := range t.KeyFrames {
			n := t.KeyFrames[i].Node
			for _, id := range []uint32{n.ArrivalEventID, n.DepartureEventID} {
				if id != 0 {
					seen[id] = struct{}{}
				}
			}
		}
	}
	ids := make([]uint32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// registerEventHandlers records every path event as a time series point.
func registerEventHandlers(d *dispatcher.Dispatcher, templates []*path.Template, points monitor.PointWriter, bucket string) {
	for _, id := range eventIDs(templates) {
		d.Register(id, func(e dispatcher.Event) (any, error) {
			return nil, points.WritePoint(bucket, influx.EventPoint(e, SessionID))
		}, dispatcher.Buffered(256), dispatcher.Logged())
	}
}

func startMetricsServer(c *observability.TransportCollector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              viper.GetString("metrics.listen"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("Metrics server failed", "error", err)
		}
	}()
	Logger.Info("Serving metrics", "addr", srv.Addr)
	return srv
}

func runSimulation(ctx context.Context) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			Logger.Error("Failed to close storage", "error", err)
		}
	}()

	opts := simOptions{Sim: config.GetSimConfig(), Bucket: influx.Bucket()}

	if viper.GetBool("metrics.enabled") {
		opts.Metrics, err = observability.NewTransportCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		srv := startMetricsServer(opts.Metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	im := influx.NewManager(ZLogger, backupPath())
	switch err := im.Connect(); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		Logger.Error("Failed to set up InfluxDB", "error", err)
	default:
		opts.Points = im
		defer im.Close()
	}

	if viper.GetBool("stream.enabled") {
		b := stream.New(stream.Config{
			URL:       viper.GetString("stream.url"),
			Secret:    viper.GetString("stream.secret"),
			SessionID: SessionID,
			Version:   CurrentVersion,
		}, Logger)
		if err := b.Init(); err != nil {
			Logger.Warn("Stream unavailable, continuing without", "error", err)
		} else {
			opts.Stream = b
			defer b.Close()
		}
	}

	sim, err := buildSimulation(ctx, st, opts)
	if err != nil {
		return err
	}
	if opts.Stream != nil {
		opts.Stream.Track(sim.transports)
	}
	spawned := sim.transports.SpawnContinentTransports()
	Logger.Info("Transports spawned", "templates", len(sim.transports.Templates()), "transports", spawned)

	if err := st.StartRun(ctx, SessionID, len(sim.transports.Templates())); err != nil {
		Logger.Error("Failed to record run start", "error", err)
	}

	monDeps := monitor.Dependencies{
		Transports: sim.transports,
		Points:     opts.Points,
		Bucket:     opts.Bucket,
		Metrics:    opts.Metrics,
		StatusPath: filepath.Join(viper.GetString("logsDir"), "status.json"),
		Interval:   viper.GetDuration("monitor.interval"),
		SessionID:  SessionID,
		Logger:     Logger,
	}
	if opts.Stream != nil {
		monDeps.Stream = opts.Stream
	}
	mon := monitor.NewService(monDeps)
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	Logger.Info("Simulation running", "tick", opts.Sim.Tick)
	err = sim.world.Run(ctx, opts.Sim.Tick)

	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if endErr := st.EndRun(endCtx, SessionID, len(sim.transports.Transports())); endErr != nil {
		Logger.Error("Failed to record run end", "error", endErr)
	}
	mon.Publish(time.Now())
	Logger.Info("Simulation stopped")
	return err
}
