package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/transport/internal/config"
	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/internal/observability"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/internal/storage/memory"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ZLogger = zerolog.Nop()
	os.Exit(m.Run())
}

type recordingWriter struct {
	mu     sync.Mutex
	points []*influxdb2_write.Point
}

func (w *recordingWriter) WritePoint(_ string, p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

func seededBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(config.MemoryConfig{})
	require.NoError(t, b.Init())
	require.NoError(t, seedDemo(context.Background(), b))
	return b
}

func TestDemoDataset_Generates(t *testing.T) {
	transports, spawns := demoDataset()
	require.Len(t, transports, 3)
	assert.Len(t, spawns, 3)

	byEntry := map[uint32]*path.Template{}
	for _, tr := range transports {
		tmpl, err := path.Generate(tr.Info, tr.Nodes)
		require.NoError(t, err, "transport %d", tr.Info.Entry)
		assert.Positive(t, tmpl.Period)
		byEntry[tr.Info.Entry] = tmpl
	}

	ferry := byEntry[demoFerry]
	assert.True(t, ferry.Cyclic)
	assert.True(t, ferry.HasStops)
	assert.Len(t, ferry.KeyFrames, 4)

	zeppelin := byEntry[demoZeppelin]
	assert.False(t, zeppelin.Cyclic)
	assert.Equal(t, []uint32{0, 1}, zeppelin.MapsUsed)
	assert.Len(t, zeppelin.KeyFrames, 6)
	assert.True(t, zeppelin.KeyFrames[2].Teleport)
	assert.True(t, zeppelin.KeyFrames[5].Teleport)

	assert.Equal(t, []uint32{demoInstancedMap}, byEntry[demoLift].MapsUsed)
}

func TestSeedDemo(t *testing.T) {
	b := seededBackend(t)
	ctx := context.Background()

	infos, err := b.TransportTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 3)

	nodes, err := b.PathNodes(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, nodes, 12)

	normal, err := b.StaticPassengers(demoCrewMap, 1)
	require.NoError(t, err)
	assert.Len(t, normal, 2)

	heroic, err := b.StaticPassengers(demoCrewMap, 2)
	require.NoError(t, err)
	assert.Len(t, heroic, 3)
}

func TestEventIDs(t *testing.T) {
	transports, _ := demoDataset()
	var templates []*path.Template
	for _, tr := range transports {
		tmpl, err := path.Generate(tr.Info, tr.Nodes)
		require.NoError(t, err)
		templates = append(templates, tmpl)
	}
	assert.Equal(t, []uint32{1001, 1002, 1003, 1004, 2001, 2002}, eventIDs(templates))
}

func TestBuildSimulation(t *testing.T) {
	b := seededBackend(t)
	points := &recordingWriter{}
	metrics, err := observability.NewTransportCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	sim, err := buildSimulation(context.Background(), b, simOptions{
		Sim: config.SimConfig{
			Tick:             50 * time.Millisecond,
			PositionUpdateMs: 200,
			InstanceableMaps: []uint32{demoInstancedMap},
		},
		Metrics: metrics,
		Points:  points,
		Bucket:  "transports",
	})
	require.NoError(t, err)
	assert.Len(t, sim.transports.Templates(), 3)

	// periods are written back on first load
	infos, err := b.TransportTemplates(context.Background())
	require.NoError(t, err)
	for _, info := range infos {
		assert.Positive(t, info.Period, "transport %d", info.Entry)
	}

	assert.Equal(t, 2, sim.transports.SpawnContinentTransports())
	for i := 0; i < 20; i++ {
		sim.world.Update(100)
	}
	assert.Len(t, sim.transports.Statuses(), 2)

	inst, err := sim.world.CreateInstance(demoInstancedMap, 0)
	require.NoError(t, err)
	sim.world.Update(100)
	assert.Len(t, sim.transports.Statuses(), 3)

	require.NoError(t, sim.world.UnloadInstance(demoInstancedMap, inst.InstanceID()))
	sim.world.Update(100)
	assert.Len(t, sim.transports.Statuses(), 2)

	assert.True(t, sim.events.HasHandler(1001))
	_, err = sim.events.Dispatch(dispatcher.Event{ID: 1001, Kind: dispatcher.Arrival, Entry: demoFerry, MapID: 1})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return points.count() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestExportPaths(t *testing.T) {
	b := seededBackend(t)

	var got struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}

	var all bytes.Buffer
	n, err := exportPaths(context.Background(), b, nil, &all)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, json.Unmarshal(all.Bytes(), &got))
	assert.Equal(t, "FeatureCollection", got.Type)
	assert.Len(t, got.Features, 3)

	var one bytes.Buffer
	_, err = exportPaths(context.Background(), b, []uint32{demoFerry}, &one)
	require.NoError(t, err)
	got.Features = nil
	require.NoError(t, json.Unmarshal(one.Bytes(), &got))
	require.Len(t, got.Features, 1)
	assert.Equal(t, "Ferry", got.Features[0].Properties["name"])
	assert.Equal(t, true, got.Features[0].Properties["cyclic"])
}

func TestRun_UnknownCommand(t *testing.T) {
	assert.Error(t, run([]string{"bogus"}))
}

func TestParseEntries(t *testing.T) {
	entries, err := parseEntries([]string{"20808", "3001"})
	require.NoError(t, err)
	assert.Equal(t, []uint32{20808, 3001}, entries)

	_, err = parseEntries([]string{"-1"})
	assert.Error(t, err)
}

func TestExport_InvalidEntry(t *testing.T) {
	assert.Error(t, export(context.Background(), io.Discard, []string{"ferry"}))
}
