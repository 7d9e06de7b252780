// Package mission turns operator-clicked coordinates into a mission.
package mission

import (
	"fmt"
	"sync"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

// NoMarker disables the payload release.
const NoMarker = 0

// Build is the stateless form of Builder.Build. marker is 1-based; NoMarker
// disables the release.
func Build(cfg *Config, coords []waypoint.Coordinate, marker int) (waypoint.Mission, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("no coordinates: %w", errdefs.ErrValidation)
	}
	if marker < 0 || marker > len(coords) {
		return nil, fmt.Errorf("marker %d outside 1..%d: %w", marker, len(coords), errdefs.ErrValidation)
	}
	if marker != NoMarker && marker == len(coords) {
		// LAND must stay the final command.
		return nil, fmt.Errorf("marker %d is the landing point: %w", marker, errdefs.ErrValidation)
	}

	p := &plan{cfg: cfg}
	p.emit(waypoint.CommandTakeoff, waypoint.Coordinate{}, cfg.TakeoffAlt, [4]float64{})

	last := len(coords)
	for i, c := range coords {
		pos := i + 1
		if pos == last {
			p.emit(waypoint.CommandLand, c, 0, [4]float64{})
		} else {
			p.emit(waypoint.CommandWaypoint, c, cfg.CruiseAlt, [4]float64{})
		}
		if pos == marker {
			p.release(c)
		}
	}

	p.out.Renumber()
	return p.out, nil
}

// plan accumulates commands for one build.
type plan struct {
	cfg      *Config
	out      waypoint.Mission
	inserted bool
}

func (p *plan) emit(cmd waypoint.CommandType, c waypoint.Coordinate, alt float64, params [4]float64) {
	p.out = append(p.out, waypoint.Command{
		Frame:        waypoint.FrameRelativeAlt,
		Command:      cmd,
		Params:       params,
		Lat:          c.Lat,
		Lon:          c.Lon,
		Alt:          alt,
		AutoContinue: true,
	})
}

// release inserts the SERVO_SET and climb-back pair at c. Only the first call
// has an effect.
func (p *plan) release(c waypoint.Coordinate) {
	if p.inserted {
		return
	}
	p.inserted = true

	alt := p.out[len(p.out)-1].Alt
	p.emit(waypoint.CommandServoSet, c, alt, [4]float64{float64(p.cfg.ServoChannel), float64(p.cfg.TriggerPWM)})
	p.emit(waypoint.CommandWaypoint, c, p.cfg.ClimbAlt, [4]float64{})
}

// Builder is one planning session fed by map clicks.
type Builder struct {
	mu sync.Mutex

	cfg    *Config
	coords []waypoint.Coordinate
	marker int
	// stale is set when the marked coordinate was removed.
	stale   bool
	release *waypoint.Coordinate
}

// NewBuilder returns an empty session using cfg.
func NewBuilder(cfg *Config) *Builder {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Builder{cfg: cfg}
}

// Add appends a clicked coordinate.
func (b *Builder) Add(c waypoint.Coordinate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coords = append(b.coords, c)
}

// Remove deletes the coordinate at 1-based position i. A marker after i
// shifts down with it; a marker on i becomes invalid.
func (b *Builder) Remove(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 1 || i > len(b.coords) {
		return fmt.Errorf("position %d outside 1..%d: %w", i, len(b.coords), errdefs.ErrValidation)
	}
	b.coords = append(b.coords[:i-1], b.coords[i:]...)

	switch {
	case b.marker == i:
		b.stale = true
	case b.marker > i:
		b.marker--
	}
	return nil
}

// SetMarker marks 1-based position i for the payload release.
func (b *Builder) SetMarker(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marker = i
	b.stale = false
}

func (b *Builder) ClearMarker() {
	b.SetMarker(NoMarker)
}

// Coordinates returns a copy of the clicked coordinates.
func (b *Builder) Coordinates() []waypoint.Coordinate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]waypoint.Coordinate(nil), b.coords...)
}

// Reset clears the session.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coords = nil
	b.marker = NoMarker
	b.stale = false
	b.release = nil
}

// ReleasePoint returns where the last successful Build dropped the payload.
func (b *Builder) ReleasePoint() (waypoint.Coordinate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.release == nil {
		return waypoint.Coordinate{}, false
	}
	return *b.release, true
}

// Build returns the mission for the current session.
func (b *Builder) Build() (waypoint.Mission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.build()
}

func (b *Builder) build() (waypoint.Mission, error) {
	if b.stale {
		return nil, fmt.Errorf("marker refers to a removed coordinate: %w", errdefs.ErrValidation)
	}

	m, err := Build(b.cfg, b.coords, b.marker)
	if err != nil {
		return nil, err
	}

	b.release = nil
	if b.marker != NoMarker {
		c := b.coords[b.marker-1]
		b.release = &c
	}
	return m, nil
}

// Finalize builds the mission and writes it to path. An empty session is
// logged and skipped without error.
func (b *Builder) Finalize(path string) (bool, error) {
	b.mu.Lock()
	if len(b.coords) == 0 {
		b.mu.Unlock()
		log.Info("no coordinates", "path", path)
		return false, nil
	}
	m, err := b.build()
	b.mu.Unlock()
	if err != nil {
		return false, err
	}

	if err := waypoint.Write(path, m); err != nil {
		return false, err
	}

	log.Info("Mission written", "path", path, "commands", len(m))
	return true, nil
}
