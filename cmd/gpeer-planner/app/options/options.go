package options

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/groundpeer/internal/archive"
	"github.com/autopeer-io/groundpeer/internal/mission"
	"github.com/autopeer-io/groundpeer/internal/planner"
	"github.com/autopeer-io/groundpeer/internal/profile"
	"github.com/autopeer-io/groundpeer/pkg/app"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

type GeneralOptions struct {
	Clicks      string `json:"clicks" mapstructure:"clicks"`
	Output      string `json:"output" mapstructure:"output"`
	Role        string `json:"role" mapstructure:"role"`
	ProfileFile string `json:"profile-file" mapstructure:"profile-file"`
	Watch       bool   `json:"watch" mapstructure:"watch"`
	Print       bool   `json:"print" mapstructure:"print"`
}

func (o *GeneralOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Clicks, "planner.clicks", o.Clicks, "Clicks file written by the web map (JSON, or YAML by extension).")
	fs.StringVar(&o.Output, "planner.output", o.Output, "Mission file to write (defaults to the role's mission file).")
	fs.StringVar(&o.Role, "planner.role", o.Role, "Plan for this role; its profile replaces the mission.* flags.")
	fs.StringVar(&o.ProfileFile, "planner.profile-file", o.ProfileFile, "YAML file with per-role vehicle profiles.")
	fs.BoolVar(&o.Watch, "planner.watch", o.Watch, "Rebuild the mission whenever the clicks file changes.")
	fs.BoolVar(&o.Print, "planner.print", o.Print, "Print every built mission as a table.")
}

func (o *GeneralOptions) Validate() []error {
	var errs []error
	if o.Clicks == "" {
		errs = append(errs, errors.New("planner.clicks is required"))
	}
	if o.Output == "" && o.Role == "" {
		errs = append(errs, errors.New("one of planner.output or planner.role is required"))
	}
	return errs
}

type PlannerOptions struct {
	Planner   *GeneralOptions    `json:"planner" mapstructure:"planner"`
	Mission   *mission.Config    `json:"mission" mapstructure:"mission"`
	S3Options *options.S3Options `json:"s3" mapstructure:"s3"`
	Log       *log.Options       `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*PlannerOptions)(nil)
	_ app.LogOptioner         = (*PlannerOptions)(nil)
)

func NewPlannerOptions() *PlannerOptions {
	return &PlannerOptions{
		Planner:   &GeneralOptions{},
		Mission:   mission.NewConfig(),
		S3Options: options.NewS3Options(),
		Log:       log.NewOptions(),
	}
}

func (o *PlannerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Planner.AddFlags(fss.FlagSet("planner"))
	o.Mission.AddFlags(fss.FlagSet("mission"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *PlannerOptions) Complete() error {
	return nil
}

func (o *PlannerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Planner.Validate()...)
	errs = append(errs, o.Mission.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *PlannerOptions) LogOptions() *log.Options {
	return o.Log
}

// Config resolves the mission policy and output file. A role takes both
// from its profile; an explicit planner.output still wins.
func (o *PlannerOptions) Config() (*planner.Config, error) {
	cfg := &planner.Config{
		Mission: o.Mission,
		Clicks:  o.Planner.Clicks,
		Output:  o.Planner.Output,
		Role:    o.Planner.Role,
		Watch:   o.Planner.Watch,
		Print:   o.Planner.Print,
	}

	if o.Planner.Role != "" {
		profiles := profile.Defaults()
		if o.Planner.ProfileFile != "" {
			var err error
			if profiles, err = profile.Load(o.Planner.ProfileFile); err != nil {
				return nil, err
			}
		}
		p := profiles.For(o.Planner.Role)
		cfg.Mission = &p.Mission
		if cfg.Output == "" {
			cfg.Output = p.MissionFile
		}
	}

	if o.S3Options.Enabled() {
		store, err := archive.NewMinIO(o.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		cfg.Archive = store
	}

	return cfg, nil
}
