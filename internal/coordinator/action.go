package coordinator

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// Role names a vehicle slot in the formation.
type Role string

const (
	RoleMother Role = "mother"
	RoleTop    Role = "top"
	RoleBottom Role = "bottom"
)

// Roles lists the stock roles in panel order.
var Roles = []Role{RoleMother, RoleTop, RoleBottom}

// Action is an operator panel command.
type Action string

const (
	ActionConnect     Action = "connect"
	ActionDisconnect  Action = "disconnect"
	ActionUpload      Action = "upload"
	ActionUploadModel Action = "upload-model"
	ActionArm         Action = "arm"
	ActionDisarm      Action = "disarm"
	ActionStart       Action = "start"
	ActionLand        Action = "land"
	ActionServoOpen   Action = "servo-open"
	ActionServoClose  Action = "servo-close"

	// modePrefix starts a mode change action such as "mode:LOITER".
	modePrefix = "mode:"
)

var actions = []Action{
	ActionConnect, ActionDisconnect, ActionUpload, ActionUploadModel, ActionArm,
	ActionDisarm, ActionStart, ActionLand, ActionServoOpen, ActionServoClose,
}

var (
	ErrUnknownRole   = fmt.Errorf("%w: unknown role", errdefs.ErrValidation)
	ErrUnknownAction = fmt.Errorf("%w: unknown action", errdefs.ErrValidation)
)

// ModeAction returns the action that switches to mode.
func ModeAction(mode string) Action {
	return Action(modePrefix + mode)
}

// Mode returns the target mode of a mode change action.
func (a Action) Mode() (string, bool) {
	return strings.CutPrefix(string(a), modePrefix)
}

// ParseAction validates s as a panel command.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if mode, ok := a.Mode(); ok {
		mode = strings.ToUpper(mode)
		if !vehicle.ValidMode(mode) {
			return "", fmt.Errorf("%w %q: unknown mode", ErrUnknownAction, s)
		}
		return ModeAction(mode), nil
	}
	for _, known := range actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownAction, s)
}
