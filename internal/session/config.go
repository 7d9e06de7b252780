package session

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
)

// Config holds the poll cadence and channel policy of a session.
type Config struct {
	// ModeInterval and ModeTimeout bound every mode, arm, disarm, land and
	// start wait unless a call overrides them.
	ModeInterval time.Duration `json:"mode-interval" mapstructure:"mode-interval" yaml:"modeInterval"`
	ModeTimeout  time.Duration `json:"mode-timeout" mapstructure:"mode-timeout" yaml:"modeTimeout"`

	// CompletionInterval is the poll period of WaitForMissionCompletion.
	CompletionInterval time.Duration `json:"completion-interval" mapstructure:"completion-interval" yaml:"completionInterval"`

	ServoChannel  int `json:"servo-channel" mapstructure:"servo-channel" yaml:"servoChannel"`
	ServoOpenPWM  int `json:"servo-open-pwm" mapstructure:"servo-open-pwm" yaml:"servoOpenPWM"`
	ServoClosePWM int `json:"servo-close-pwm" mapstructure:"servo-close-pwm" yaml:"servoClosePWM"`

	// ThrottleChannel, NudgePWM and NudgeHold shape the throttle nudge a
	// follower gets right after arming.
	ThrottleChannel int           `json:"throttle-channel" mapstructure:"throttle-channel" yaml:"throttleChannel"`
	NudgePWM        int           `json:"nudge-pwm" mapstructure:"nudge-pwm" yaml:"nudgePWM"`
	NudgeHold       time.Duration `json:"nudge-hold" mapstructure:"nudge-hold" yaml:"nudgeHold"`
}

func NewConfig() *Config {
	return &Config{
		ModeInterval:       time.Second,
		ModeTimeout:        10 * time.Second,
		CompletionInterval: 2 * time.Second,
		ServoChannel:       vehicle.ChannelServo,
		ServoOpenPWM:       vehicle.ServoOpenPWM,
		ServoClosePWM:      vehicle.ServoClosePWM,
		ThrottleChannel:    vehicle.ChannelThrottle,
		NudgePWM:           100,
		NudgeHold:          2 * time.Second,
	}
}

func (c *Config) Validate() []error {
	var errs []error

	if c.ModeInterval <= 0 {
		errs = append(errs, errors.New("session.mode-interval must be positive"))
	}
	if c.ModeTimeout < c.ModeInterval {
		errs = append(errs, errors.New("session.mode-timeout must not be shorter than session.mode-interval"))
	}
	if c.CompletionInterval <= 0 {
		errs = append(errs, errors.New("session.completion-interval must be positive"))
	}
	for _, ch := range []int{c.ServoChannel, c.ThrottleChannel} {
		if ch < 1 || ch > 16 {
			errs = append(errs, errors.New("session channels must be in [1,16]"))
			break
		}
	}
	if c.NudgeHold < 0 {
		errs = append(errs, errors.New("session.nudge-hold must not be negative"))
	}

	return errs
}

func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&c.ModeInterval, "session.mode-interval", c.ModeInterval, "Poll interval while waiting for a mode or arm state.")
	fs.DurationVar(&c.ModeTimeout, "session.mode-timeout", c.ModeTimeout, "Timeout for mode, arm, disarm, land and start waits.")
	fs.DurationVar(&c.CompletionInterval, "session.completion-interval", c.CompletionInterval, "Poll interval while waiting for a mission to complete.")
	fs.IntVar(&c.ServoChannel, "session.servo-channel", c.ServoChannel, "RC channel driven by servo open/close.")
	fs.IntVar(&c.ServoOpenPWM, "session.servo-open-pwm", c.ServoOpenPWM, "PWM for servo open.")
	fs.IntVar(&c.ServoClosePWM, "session.servo-close-pwm", c.ServoClosePWM, "PWM for servo close.")
	fs.IntVar(&c.ThrottleChannel, "session.throttle-channel", c.ThrottleChannel, "RC channel used for the throttle nudge.")
	fs.IntVar(&c.NudgePWM, "session.nudge-pwm", c.NudgePWM, "Throttle override applied during the nudge.")
	fs.DurationVar(&c.NudgeHold, "session.nudge-hold", c.NudgeHold, "How long the throttle nudge is held.")
}
