package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/profile"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/app"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

// GeneralOptions shape the gated launch.
type GeneralOptions struct {
	Leader          string        `json:"leader" mapstructure:"leader"`
	Follower        string        `json:"follower" mapstructure:"follower"`
	LeaderMission   string        `json:"leader-mission" mapstructure:"leader-mission"`
	FollowerMission string        `json:"follower-mission" mapstructure:"follower-mission"`
	GateChannel     int           `json:"gate-channel" mapstructure:"gate-channel"`
	GateThreshold   float64       `json:"gate-threshold" mapstructure:"gate-threshold"`
	GateInterval    time.Duration `json:"gate-interval" mapstructure:"gate-interval"`
	NudgePWM        int           `json:"nudge-pwm" mapstructure:"nudge-pwm"`
	NudgeHold       time.Duration `json:"nudge-hold" mapstructure:"nudge-hold"`
	MissionDir      string        `json:"mission-dir" mapstructure:"mission-dir"`
	ProfileFile     string        `json:"profile-file" mapstructure:"profile-file"`
	ListPorts       bool          `json:"list-ports" mapstructure:"list-ports"`
}

func newGeneralOptions() *GeneralOptions {
	p := coordinator.DefaultLaunchPlan()
	return &GeneralOptions{
		Leader:          string(p.Leader),
		Follower:        string(p.Follower),
		LeaderMission:   p.LeaderMission,
		FollowerMission: p.FollowerMission,
		GateChannel:     vehicle.ChannelServo,
		GateThreshold:   p.GateThreshold,
		GateInterval:    p.GateInterval,
		NudgePWM:        p.NudgePWM,
		NudgeHold:       p.NudgeHold,
	}
}

func (o *GeneralOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Leader, "launch.leader", o.Leader, "Role that flies first and carries the gate switch.")
	fs.StringVar(&o.Follower, "launch.follower", o.Follower, "Role that waits for the gate.")
	fs.StringVar(&o.LeaderMission, "launch.leader-mission", o.LeaderMission, "Mission file flown by the leader.")
	fs.StringVar(&o.FollowerMission, "launch.follower-mission", o.FollowerMission, "Mission file flown by the follower.")
	fs.IntVar(&o.GateChannel, "launch.gate-channel", o.GateChannel, "Leader RC channel watched by the gate.")
	fs.Float64Var(&o.GateThreshold, "launch.gate-threshold", o.GateThreshold, "PWM at or above which the gate opens.")
	fs.DurationVar(&o.GateInterval, "launch.gate-interval", o.GateInterval, "Poll interval of the gate.")
	fs.IntVar(&o.NudgePWM, "launch.nudge-pwm", o.NudgePWM, "Throttle PWM held on the follower after arming.")
	fs.DurationVar(&o.NudgeHold, "launch.nudge-hold", o.NudgeHold, "How long the throttle nudge is held.")
	fs.StringVar(&o.MissionDir, "launch.mission-dir", o.MissionDir, "Directory that relative mission file names resolve against.")
	fs.StringVar(&o.ProfileFile, "launch.profile-file", o.ProfileFile, "YAML file with per-role vehicle profiles.")
	fs.BoolVar(&o.ListPorts, "launch.list-ports", o.ListPorts, "Print the candidate devices and exit.")
}

func (o *GeneralOptions) Validate() []error {
	var errs []error
	if o.GateChannel < 1 || o.GateChannel > 18 {
		errs = append(errs, errors.New("launch.gate-channel must be in [1,18]"))
	}
	return errs
}

type LaunchOptions struct {
	Launch        *GeneralOptions        `json:"launch" mapstructure:"launch"`
	SerialOptions *options.SerialOptions `json:"serial" mapstructure:"serial"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*LaunchOptions)(nil)
	_ app.LogOptioner         = (*LaunchOptions)(nil)
)

func NewLaunchOptions() *LaunchOptions {
	return &LaunchOptions{
		Launch:        newGeneralOptions(),
		SerialOptions: options.NewSerialOptions(),
		Log:           log.NewOptions(),
	}
}

func (o *LaunchOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Launch.AddFlags(fss.FlagSet("launch"))
	o.SerialOptions.AddFlags(fss.FlagSet("serial"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *LaunchOptions) Complete() error {
	return nil
}

func (o *LaunchOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Launch.Validate()...)
	errs = append(errs, o.SerialOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if err := o.Plan().Validate(); err != nil {
		errs = append(errs, err)
	}
	return utilerrors.NewAggregate(errs)
}

func (o *LaunchOptions) LogOptions() *log.Options {
	return o.Log
}

// Plan is the launch described by the flags.
func (o *LaunchOptions) Plan() coordinator.LaunchPlan {
	p := coordinator.DefaultLaunchPlan()
	p.Leader = coordinator.Role(o.Launch.Leader)
	p.Follower = coordinator.Role(o.Launch.Follower)
	p.LeaderMission = o.Launch.LeaderMission
	p.FollowerMission = o.Launch.FollowerMission
	p.GateField = vehicle.ChannelField(o.Launch.GateChannel)
	p.GateThreshold = o.Launch.GateThreshold
	p.GateInterval = o.Launch.GateInterval
	p.NudgePWM = o.Launch.NudgePWM
	p.NudgeHold = o.Launch.NudgeHold
	return p
}

// Config is the coordinator configuration shared by every role.
func (o *LaunchOptions) Config() (coordinator.Config, error) {
	profiles := profile.Defaults()
	if o.Launch.ProfileFile != "" {
		var err error
		if profiles, err = profile.Load(o.Launch.ProfileFile); err != nil {
			return coordinator.Config{}, err
		}
	}
	return coordinator.Config{
		Baud:           o.SerialOptions.Baud,
		ConnectTimeout: o.SerialOptions.ConnectTimeout,
		Profiles:       profiles,
		MissionDir:     o.Launch.MissionDir,
	}, nil
}
