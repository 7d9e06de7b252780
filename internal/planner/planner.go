// Package planner turns web map clicks into mission files.
package planner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"github.com/autopeer-io/groundpeer/internal/archive"
	"github.com/autopeer-io/groundpeer/internal/mission"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

const (
	watchDebounce = 200 * time.Millisecond
	putTimeout    = 30 * time.Second
)

// Config is a planner run.
type Config struct {
	Mission *mission.Config

	// Clicks is the clicks file read on every build.
	Clicks string

	// Output is the mission file written on every build.
	Output string

	// Role names the archive prefix; empty means "planner".
	Role string

	Watch bool
	Print bool

	// Archive is optional.
	Archive archive.Archive
}

// Result describes one build.
type Result struct {
	Written bool
	Path    string
	Size    int64
	Mission waypoint.Mission

	// Release is the servo release point, the home of the second phase.
	Release *waypoint.Coordinate
}

type Planner struct {
	cfg *Config
	out io.Writer
	now func() time.Time
}

func NewPlanner(cfg *Config, out io.Writer) *Planner {
	if cfg.Mission == nil {
		cfg.Mission = mission.NewConfig()
	}
	return &Planner{cfg: cfg, out: out, now: time.Now}
}

// Plan reads the clicks file and writes the mission. An empty clicks file
// writes nothing.
func (p *Planner) Plan(ctx context.Context) (*Result, error) {
	clicks, err := LoadClicks(p.cfg.Clicks)
	if err != nil {
		return nil, err
	}

	b := mission.NewBuilder(p.cfg.Mission)
	for _, c := range clicks.Positions() {
		b.Add(c)
	}
	if clicks.Marker != mission.NoMarker {
		b.SetMarker(clicks.Marker)
	}

	written, err := b.Finalize(p.cfg.Output)
	if err != nil {
		return nil, err
	}
	res := &Result{Written: written, Path: p.cfg.Output}
	if !written {
		return res, nil
	}

	if res.Mission, err = b.Build(); err != nil {
		return nil, err
	}
	if c, ok := b.ReleasePoint(); ok {
		res.Release = &c
		log.Info("Release point is the home of phase two", "lat", c.Lat, "lon", c.Lon)
	}

	data, err := os.ReadFile(p.cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to read back mission: %w", err)
	}
	res.Size = int64(len(data))
	log.Info("Mission planned", "path", res.Path, "commands", len(res.Mission), "size", humanize.Bytes(uint64(res.Size)))

	if p.cfg.Archive != nil {
		if err := p.archive(ctx, data); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Planner) archive(ctx context.Context, data []byte) error {
	role := p.cfg.Role
	if role == "" {
		role = "planner"
	}
	key := archive.ObjectKey(role, p.cfg.Output, p.now())

	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()
	if err := p.cfg.Archive.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to archive mission: %w", err)
	}
	log.Info("Mission archived", "key", key)
	return nil
}

// Run plans once and, in watch mode, again on every change of the clicks
// file until ctx ends. Failed rebuilds are logged and the watch goes on.
func (p *Planner) Run(ctx context.Context) error {
	res, err := p.Plan(ctx)
	if err != nil && !p.cfg.Watch {
		return err
	}
	p.report(res, err)

	if !p.cfg.Watch {
		return nil
	}

	log.Info("Watching clicks file", "path", p.cfg.Clicks)
	return Watch(ctx, p.cfg.Clicks, watchDebounce, func() {
		p.report(p.Plan(ctx))
	})
}

func (p *Planner) report(res *Result, err error) {
	if err != nil {
		log.Error(err, "Failed to plan mission", "clicks", p.cfg.Clicks)
		return
	}
	if p.cfg.Print && res.Written {
		Render(p.out, res.Mission)
	}
}

// Render writes m as a table.
func Render(w io.Writer, m waypoint.Mission) {
	table := uitable.New()
	table.MaxColWidth = 16
	table.AddRow("SEQ", "COMMAND", "LAT", "LON", "ALT", "P1", "P2")
	for _, c := range m {
		table.AddRow(c.Seq, c.Command.String(),
			fmt.Sprintf("%.7f", c.Lat), fmt.Sprintf("%.7f", c.Lon), fmt.Sprintf("%.1f", c.Alt),
			fmt.Sprintf("%g", c.Params[0]), fmt.Sprintf("%g", c.Params[1]))
	}
	fmt.Fprintln(w, table)
}
