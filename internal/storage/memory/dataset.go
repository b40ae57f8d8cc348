// internal/storage/memory/dataset.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OCAP2/transport/pkg/core"
)

// Dataset is the root JSON structure of a template file
type Dataset struct {
	Templates []TemplateJSON `json:"templates"`
	Spawns    []SpawnJSON    `json:"spawns"`
}

// TemplateJSON is one transport kind with its path
type TemplateJSON struct {
	Entry          uint32            `json:"entry"`
	Name           string            `json:"name"`
	PathID         uint32            `json:"pathId"`
	Speed          float64           `json:"speed"`
	Accel          float64           `json:"accel"`
	InInstance     bool              `json:"inInstance,omitempty"`
	PassengerMapID uint32            `json:"passengerMapId,omitempty"`
	Period         uint32            `json:"period,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	Nodes          []NodeJSON        `json:"nodes"`
}

// NodeJSON is one waypoint. Pos is [x, y, z]; the index is the array position.
type NodeJSON struct {
	MapID     uint32     `json:"map"`
	Pos       [3]float64 `json:"pos"`
	Action    uint8      `json:"action,omitempty"`
	Delay     uint32     `json:"delay,omitempty"`
	Arrival   uint32     `json:"arrivalEvent,omitempty"`
	Departure uint32     `json:"departureEvent,omitempty"`
}

// SpawnJSON is one static passenger. Offset is [x, y, z, o].
type SpawnJSON struct {
	GUID       uint64     `json:"guid"`
	Entry      uint32     `json:"entry"`
	Type       uint8      `json:"type,omitempty"`
	MapID      uint32     `json:"map"`
	Difficulty uint8      `json:"difficulty,omitempty"`
	Offset     [4]float64 `json:"offset"`
}

// LoadJSON replaces the backend content with the dataset read from r
func (b *Backend) LoadJSON(r io.Reader) error {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return fmt.Errorf("decode dataset: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.templates = make(map[uint32]*TemplateRecord, len(ds.Templates))
	b.spawns = make(map[uint32][]core.StaticSpawn)
	for _, t := range ds.Templates {
		info := core.TransportInfo{
			Entry:          t.Entry,
			Name:           t.Name,
			PathID:         t.PathID,
			Speed:          t.Speed,
			Accel:          t.Accel,
			InInstance:     t.InInstance,
			PassengerMapID: t.PassengerMapID,
			Period:         t.Period,
			Meta:           t.Meta,
		}
		nodes := make([]core.WaypointNode, len(t.Nodes))
		for i, n := range t.Nodes {
			nodes[i] = core.WaypointNode{
				Index:            uint32(i),
				MapID:            n.MapID,
				X:                n.Pos[0],
				Y:                n.Pos[1],
				Z:                n.Pos[2],
				Action:           core.NodeAction(n.Action),
				Delay:            n.Delay,
				ArrivalEventID:   n.Arrival,
				DepartureEventID: n.Departure,
			}
		}
		b.putTemplate(info, nodes)
	}

	spawns := make([]core.StaticSpawn, len(ds.Spawns))
	for i, s := range ds.Spawns {
		spawns[i] = core.StaticSpawn{
			GUID:       s.GUID,
			Entry:      s.Entry,
			Type:       core.TypeID(s.Type),
			MapID:      s.MapID,
			Difficulty: s.Difficulty,
			Offset:     core.Position{X: s.Offset[0], Y: s.Offset[1], Z: s.Offset[2], O: s.Offset[3]},
		}
	}
	b.putStaticSpawns(spawns)
	b.dirty = false
	return nil
}

// WriteJSON writes the backend content as an indented dataset
func (b *Backend) WriteJSON(w io.Writer) error {
	b.mu.RLock()
	ds := b.dataset()
	b.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

func (b *Backend) dataset() Dataset {
	ds := Dataset{Templates: []TemplateJSON{}, Spawns: []SpawnJSON{}}

	entries := make([]uint32, 0, len(b.templates))
	for e := range b.templates {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i] < entries[j] })

	for _, e := range entries {
		r := b.templates[e]
		t := TemplateJSON{
			Entry:          r.Info.Entry,
			Name:           r.Info.Name,
			PathID:         r.Info.PathID,
			Speed:          r.Info.Speed,
			Accel:          r.Info.Accel,
			InInstance:     r.Info.InInstance,
			PassengerMapID: r.Info.PassengerMapID,
			Period:         r.Info.Period,
			Meta:           r.Info.Meta,
			Nodes:          make([]NodeJSON, len(r.Nodes)),
		}
		for i, n := range r.Nodes {
			t.Nodes[i] = NodeJSON{
				MapID:     n.MapID,
				Pos:       [3]float64{n.X, n.Y, n.Z},
				Action:    uint8(n.Action),
				Delay:     n.Delay,
				Arrival:   n.ArrivalEventID,
				Departure: n.DepartureEventID,
			}
		}
		ds.Templates = append(ds.Templates, t)
	}

	for _, list := range b.spawns {
		for _, s := range list {
			ds.Spawns = append(ds.Spawns, SpawnJSON{
				GUID:       s.GUID,
				Entry:      s.Entry,
				Type:       uint8(s.Type),
				MapID:      s.MapID,
				Difficulty: s.Difficulty,
				Offset:     [4]float64{s.Offset.X, s.Offset.Y, s.Offset.Z, s.Offset.O},
			})
		}
	}
	sort.Slice(ds.Spawns, func(i, j int) bool { return ds.Spawns[i].GUID < ds.Spawns[j].GUID })
	return ds
}

// LoadFile reads a dataset file, gunzipping it when the name ends in .gz
func (b *Backend) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip dataset: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return b.LoadJSON(r)
}

// SaveFile writes the dataset atomically, gzipping it when the name ends in .gz
func (b *Backend) SaveFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dataset dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		err = b.WriteJSON(gz)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	} else {
		err = b.WriteJSON(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}

	b.mu.Lock()
	b.dirty = false
	b.mu.Unlock()
	return nil
}
