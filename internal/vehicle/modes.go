package vehicle

import "strconv"

// Flight mode names understood by sessions and the dialers.
const (
	ModeStabilize = "STABILIZE"
	ModeAltHold   = "ALT_HOLD"
	ModeLoiter    = "LOITER"
	ModeGuided    = "GUIDED"
	ModeAuto      = "AUTO"
	ModeLand      = "LAND"
	ModeRTL       = "RTL"
)

// Modes lists the modes offered to operators, in panel order.
var Modes = []string{ModeStabilize, ModeAltHold, ModeLoiter, ModeGuided, ModeAuto, ModeLand, ModeRTL}

// copterModes maps ArduCopter custom_mode numbers to names.
var copterModes = map[uint32]string{
	0: ModeStabilize,
	2: ModeAltHold,
	3: ModeAuto,
	4: ModeGuided,
	5: ModeLoiter,
	6: ModeRTL,
	9: ModeLand,
}

// ModeName returns the name of an ArduCopter custom mode.
func ModeName(custom uint32) (string, bool) {
	name, ok := copterModes[custom]
	return name, ok
}

// ModeNumber returns the ArduCopter custom mode for name.
func ModeNumber(name string) (uint32, bool) {
	for n, m := range copterModes {
		if m == name {
			return n, true
		}
	}
	return 0, false
}

// ValidMode reports whether name is a known mode.
func ValidMode(name string) bool {
	_, ok := ModeNumber(name)
	return ok
}

// RC channels and PWM values used by the ground station.
const (
	ChannelThrottle = 3
	ChannelServo    = 8

	ServoOpenPWM  = 1000
	ServoClosePWM = 2000
)

// Telemetry names consumed by the coordinator gate.
const (
	MessageRCChannels = "RC_CHANNELS"
)

// ChannelField returns the RC_CHANNELS field name for a channel, e.g. chan8_raw.
func ChannelField(channel int) string {
	return "chan" + strconv.Itoa(channel) + "_raw"
}
