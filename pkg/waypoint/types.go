package waypoint

import (
	"fmt"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// Header is the first line of every mission file.
const Header = "QGC WPL 110"

// CommandType is the MAVLink command code carried in a mission row.
type CommandType uint16

const (
	CommandWaypoint CommandType = 16
	CommandLand     CommandType = 21
	CommandTakeoff  CommandType = 22
	CommandServoSet CommandType = 183
)

func (c CommandType) String() string {
	switch c {
	case CommandWaypoint:
		return "WAYPOINT"
	case CommandLand:
		return "LAND"
	case CommandTakeoff:
		return "TAKEOFF"
	case CommandServoSet:
		return "SERVO_SET"
	default:
		return fmt.Sprintf("CMD(%d)", uint16(c))
	}
}

// Frame is the coordinate frame of a mission row.
type Frame uint8

// FrameRelativeAlt measures altitude relative to home.
const FrameRelativeAlt Frame = 3

// Coordinate is a clicked map position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Command is one row of a mission.
type Command struct {
	Seq          uint        `json:"seq"`
	Current      bool        `json:"current"`
	Frame        Frame       `json:"frame"`
	Command      CommandType `json:"command"`
	Params       [4]float64  `json:"params"`
	Lat          float64     `json:"lat"`
	Lon          float64     `json:"lon"`
	Alt          float64     `json:"alt"`
	AutoContinue bool        `json:"autocontinue"`
}

// Mission is an ordered list of commands.
type Mission []Command

// Validate rejects missions that cannot be uploaded.
func (m Mission) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("empty mission: %w", errdefs.ErrValidation)
	}
	return nil
}

// Renumber assigns contiguous sequence numbers starting at 1.
func (m Mission) Renumber() {
	for i := range m {
		m[i].Seq = uint(i + 1)
	}
}
