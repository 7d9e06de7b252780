package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

// Clicks is the file the web map writes: the clicked positions as
// [lat, lon] pairs and the 1-based release marker, 0 for none.
type Clicks struct {
	Coordinates [][]float64 `json:"coordinates" yaml:"coordinates"`
	Marker      int         `json:"marker,omitempty" yaml:"marker,omitempty"`
}

// Positions converts the pairs to coordinates.
func (c *Clicks) Positions() []waypoint.Coordinate {
	out := make([]waypoint.Coordinate, 0, len(c.Coordinates))
	for _, p := range c.Coordinates {
		out = append(out, waypoint.Coordinate{Lat: p[0], Lon: p[1]})
	}
	return out
}

// Validate checks every pair and the marker range.
func (c *Clicks) Validate() error {
	for i, p := range c.Coordinates {
		if len(p) != 2 {
			return fmt.Errorf("coordinate %d has %d values, want [lat, lon]: %w", i+1, len(p), errdefs.ErrValidation)
		}
		if p[0] < -90 || p[0] > 90 || p[1] < -180 || p[1] > 180 {
			return fmt.Errorf("coordinate %d (%g, %g) out of range: %w", i+1, p[0], p[1], errdefs.ErrValidation)
		}
	}
	if c.Marker < 0 || c.Marker > len(c.Coordinates) {
		return fmt.Errorf("marker %d outside 0..%d: %w", c.Marker, len(c.Coordinates), errdefs.ErrValidation)
	}
	return nil
}

// LoadClicks reads a clicks file. Files ending in .yaml or .yml are YAML,
// anything else is JSON.
func LoadClicks(path string) (*Clicks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clicks file: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return ParseClicks(data, format)
}

// ParseClicks decodes data as format ("json" or "yaml") and validates it.
func ParseClicks(data []byte, format string) (*Clicks, error) {
	c := &Clicks{}
	if len(bytes.TrimSpace(data)) > 0 {
		var err error
		switch format {
		case "yaml":
			err = yaml.Unmarshal(data, c)
		case "json":
			err = json.Unmarshal(data, c)
		default:
			return nil, fmt.Errorf("unknown clicks format %q: %w", format, errdefs.ErrValidation)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode clicks: %v: %w", err, errdefs.ErrFormat)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
