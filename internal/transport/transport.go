// Package transport simulates transports travelling along precomputed
// paths and keeps their passengers positioned on board.
package transport

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/internal/logging"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/pkg/core"
)

// DefaultPositionUpdateInterval is the minimum time between two pose
// updates of a moving transport, in milliseconds.
const DefaultPositionUpdateInterval = 200

var (
	ErrTemplateNotFound = errors.New("transport template not found")
	ErrInvalidPosition  = errors.New("invalid transport position")
	ErrInstanceMismatch = errors.New("transport instancing does not match map")
	ErrNilPassenger     = errors.New("nil passenger")
	ErrBoardSelf        = errors.New("transport cannot board itself")
)

// debugAssertions turns invariant violations into panics.
var debugAssertions = false

// State is the movement state of a transport.
type State uint8

const (
	StateStopped State = iota
	StateMoving
)

func (s State) String() string {
	if s == StateMoving {
		return "moving"
	}
	return "stopped"
}

// Options configures a transport instance.
type Options struct {
	// PositionUpdateInterval in milliseconds. Zero updates every tick.
	PositionUpdateInterval uint32
	Logger                 *slog.Logger
	Regions                Regions
	Spawns                 SpawnSource
	Events                 EventDispatcher
	Metrics                Metrics
}

// Transport is one live instance of a transport template. It is owned by
// a single map and is only touched on that map's turn.
type Transport struct {
	guid   core.GUID
	tmpl   *path.Template
	logger *slog.Logger

	regions  Regions
	spawns   SpawnSource
	events   EventDispatcher
	metrics  Metrics
	interval uint32

	region    Region
	pos       core.Position
	inTransit bool
	departed  time.Time
	now       func() time.Time

	current        int
	next           int
	clock          uint64
	loopStart      uint64
	state          State
	arrivalFired   bool
	departureFired bool
	enabled        bool
	sinceUpdate    uint32

	passengers    map[core.GUID]*passenger
	staticsLoaded bool

	status atomic.Pointer[Status]
}

// New creates an unattached transport positioned at the first frame of its
// template.
func New(guid core.GUID, tmpl *path.Template, opts Options) *Transport {
	t := &Transport{
		guid:       guid,
		tmpl:       tmpl,
		logger:     opts.Logger,
		regions:    opts.Regions,
		spawns:     opts.Spawns,
		events:     opts.Events,
		metrics:    opts.Metrics,
		interval:   opts.PositionUpdateInterval,
		enabled:    true,
		passengers: make(map[core.GUID]*passenger),
		now:        time.Now,
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.metrics == nil {
		t.metrics = nopMetrics{}
	}
	t.logger = logging.With(t.logger.With("transport", guid.String(), "entry", tmpl.Info.Entry), t.logContext)

	if tmpl.Len() > 0 {
		t.next = tmpl.Next(0)
		start := tmpl.Start()
		t.pos = start.Position()
		if start.Spline != nil {
			if d := start.Spline.Derivative(start.Index, 0); d.Vec2().Len() > 1e-9 {
				t.pos.O = geo.Heading(d)
			}
		}
	}
	if tmpl.Len() > 0 && t.next == 0 {
		if debugAssertions {
			panic("transport: next frame equals first frame after initialization")
		}
		t.logger.Warn("transport path has a single frame and will not move")
	}
	return t
}

func (t *Transport) GUID() core.GUID          { return t.guid }
func (t *Transport) TypeID() core.TypeID      { return core.TypeTransport }
func (t *Transport) Position() core.Position  { return t.pos }
func (t *Transport) Template() *path.Template { return t.tmpl }
func (t *Transport) Entry() uint32            { return t.tmpl.Info.Entry }
func (t *Transport) Name() string             { return t.tmpl.Info.Name }
func (t *Transport) State() State             { return t.state }
func (t *Transport) Region() Region           { return t.region }

// MapID returns the map the transport is on, or is travelling to.
func (t *Transport) MapID() uint32 {
	if t.region != nil {
		return t.region.ID()
	}
	if t.tmpl.Len() > 0 {
		return t.tmpl.Start().MapID()
	}
	return 0
}

// CurrentPeriod returns the loop duration in milliseconds.
func (t *Transport) CurrentPeriod() uint32 {
	return t.tmpl.Period
}

// CurrentTimer returns the position in the loop in milliseconds.
func (t *Transport) CurrentTimer() uint32 {
	if t.tmpl.Period == 0 {
		return 0
	}
	return uint32(t.clock % uint64(t.tmpl.Period))
}

// CurrentFrame returns the index of the frame last arrived at.
func (t *Transport) CurrentFrame() int {
	return t.current
}

// SetMovementEnabled pauses or resumes the transport clock.
func (t *Transport) SetMovementEnabled(enabled bool) {
	t.enabled = enabled
}

func (t *Transport) MovementEnabled() bool {
	return t.enabled
}

// LocalToWorld converts a pose relative to the transport into world space.
func (t *Transport) LocalToWorld(local core.Position) core.Position {
	return geo.LocalToWorld(local, t.pos)
}

// WorldToLocal converts a world pose into the transport's frame.
func (t *Transport) WorldToLocal(world core.Position) core.Position {
	return geo.WorldToLocal(world, t.pos)
}

// attach places the transport on its first map.
func (t *Transport) attach(r Region) error {
	if err := r.Add(t); err != nil {
		return err
	}
	t.region = r
	return nil
}

// Cleanup removes the transport and its static passengers from its map
// and releases dynamic passengers.
func (t *Transport) Cleanup() {
	t.unloadStaticPassengers()
	for guid, p := range t.passengers {
		delete(t.passengers, guid)
		if p.entity.Transport() == t {
			p.entity.SetTransport(nil)
		}
	}
	if t.region != nil {
		t.region.RemoveUpdatable(t)
		t.region.Remove(t)
	}
	t.reportPassengers()
	t.publish()
}
