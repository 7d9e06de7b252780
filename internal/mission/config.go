package mission

import (
	"errors"

	"github.com/spf13/pflag"
)

// Config holds the altitude and servo policy used when building a mission.
type Config struct {
	// TakeoffAlt is the altitude of the initial TAKEOFF command, in meters.
	TakeoffAlt float64 `json:"takeoff-alt" mapstructure:"takeoff-alt" yaml:"takeoffAlt"`

	// CruiseAlt is the altitude of every WAYPOINT between takeoff and landing.
	CruiseAlt float64 `json:"cruise-alt" mapstructure:"cruise-alt" yaml:"cruiseAlt"`

	// ClimbAlt is the altitude of the WAYPOINT that follows a payload release.
	ClimbAlt float64 `json:"climb-alt" mapstructure:"climb-alt" yaml:"climbAlt"`

	ServoChannel int `json:"servo-channel" mapstructure:"servo-channel" yaml:"servoChannel"`
	TriggerPWM   int `json:"trigger-pwm" mapstructure:"trigger-pwm" yaml:"triggerPWM"`
}

// NewConfig returns the payload-carrying profile.
func NewConfig() *Config {
	return &Config{
		TakeoffAlt:   3.0,
		CruiseAlt:    6.0,
		ClimbAlt:     6.0,
		ServoChannel: 8,
		TriggerPWM:   1000,
	}
}

// Validate checks the altitudes and servo settings.
func (c *Config) Validate() []error {
	var errs []error

	if c.TakeoffAlt <= 0 {
		errs = append(errs, errors.New("mission.takeoff-alt must be positive"))
	}
	if c.CruiseAlt <= 0 {
		errs = append(errs, errors.New("mission.cruise-alt must be positive"))
	}
	if c.ClimbAlt <= 0 {
		errs = append(errs, errors.New("mission.climb-alt must be positive"))
	}
	if c.ServoChannel < 1 || c.ServoChannel > 16 {
		errs = append(errs, errors.New("mission.servo-channel must be in [1,16]"))
	}
	if c.TriggerPWM < 800 || c.TriggerPWM > 2200 {
		errs = append(errs, errors.New("mission.trigger-pwm must be in [800,2200]"))
	}

	return errs
}

// AddFlags binds the mission policy to fs.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.Float64Var(&c.TakeoffAlt, "mission.takeoff-alt", c.TakeoffAlt, "Altitude of the takeoff command in meters.")
	fs.Float64Var(&c.CruiseAlt, "mission.cruise-alt", c.CruiseAlt, "Altitude of route waypoints in meters.")
	fs.Float64Var(&c.ClimbAlt, "mission.climb-alt", c.ClimbAlt, "Altitude of the climb-back waypoint after a payload release.")
	fs.IntVar(&c.ServoChannel, "mission.servo-channel", c.ServoChannel, "Servo output channel used for the payload release.")
	fs.IntVar(&c.TriggerPWM, "mission.trigger-pwm", c.TriggerPWM, "PWM value written to the servo channel on release.")
}
