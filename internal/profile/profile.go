// Package profile loads per-role vehicle profiles: which mission file a
// role flies and the altitude, servo and poll policy it uses.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/autopeer-io/groundpeer/internal/mission"
	"github.com/autopeer-io/groundpeer/internal/session"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// Profile is the configuration of one role.
type Profile struct {
	// MissionFile is the waypoint file uploaded by the "upload" action.
	MissionFile string         `yaml:"missionFile"`
	Mission     mission.Config `yaml:"mission"`
	Session     session.Config `yaml:"session"`
}

// Set maps role names to profiles.
type Set map[string]*Profile

func newProfile(file string, cruise float64) *Profile {
	p := &Profile{
		MissionFile: file,
		Mission:     *mission.NewConfig(),
		Session:     *session.NewConfig(),
	}
	p.Mission.CruiseAlt = cruise
	return p
}

// Defaults returns the stock mother, top and bottom profiles.
func Defaults() Set {
	return Set{
		"mother": newProfile("attemp.waypoints", 6),
		"top":    newProfile("TDWP.waypoints", 6),
		"bottom": newProfile("BDWP.waypoints", 4),
	}
}

// For returns the profile of role, falling back to the stock profile of the
// role and then to a generic one.
func (s Set) For(role string) *Profile {
	if p, ok := s[role]; ok {
		return p
	}
	if p, ok := Defaults()[role]; ok {
		return p
	}
	return newProfile(role+".waypoints", mission.NewConfig().CruiseAlt)
}

// Roles returns the role names in s, sorted.
func (s Set) Roles() []string {
	roles := make([]string, 0, len(s))
	for r := range s {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// Validate checks every profile and aggregates the problems.
func (s Set) Validate() error {
	var errs []error
	for _, role := range s.Roles() {
		p := s[role]
		if p.MissionFile == "" {
			errs = append(errs, fmt.Errorf("%s: missionFile is required", role))
		}
		for _, err := range p.Mission.Validate() {
			errs = append(errs, fmt.Errorf("%s: %w", role, err))
		}
		for _, err := range p.Session.Validate() {
			errs = append(errs, fmt.Errorf("%s: %w", role, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

type document struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// Load reads a profile file. Fields a profile leaves out keep the stock
// value of its role, and stock roles the file does not mention are kept.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrIO, err)
	}
	return Parse(data)
}

// Parse is Load on an in-memory document.
func Parse(data []byte) (Set, error) {
	var doc document
	if err := decodeStrict(data, &doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse profiles: %w", errdefs.ErrValidation, err)
	}

	set := Defaults()
	for role, node := range doc.Profiles {
		raw, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("%w: profile %s: %w", errdefs.ErrValidation, role, err)
		}
		p := *set.For(role)
		if err := decodeStrict(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: profile %s: %w", errdefs.ErrValidation, role, err)
		}
		set[role] = &p
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrValidation, err)
	}
	return set, nil
}

// decodeStrict decodes data into out, rejecting unknown fields.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
