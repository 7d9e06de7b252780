package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/groundpeer/internal/pkg/util/fsm"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
)

// Link states. Once connected, the session state is the lower-cased name
// of the last confirmed flight mode, e.g. "guided" or "auto".
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

const (
	EventConnect   = "event_connect"
	EventConnected = "event_connected"
	EventFail      = "event_fail"
	EventClose     = "event_close"
)

// ModeState returns the session state for a flight mode.
func ModeState(mode string) string {
	return strings.ToLower(mode)
}

func modeEvent(mode string) string {
	return "event_mode_" + ModeState(mode)
}

func newMachine(s *Session) *fsm.FSM {
	live := []string{StateConnected}
	for _, m := range vehicle.Modes {
		live = append(live, ModeState(m))
	}

	events := fsm.Events{
		{Name: EventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
		{Name: EventConnected, Src: []string{StateConnecting}, Dst: StateConnected},
		{Name: EventFail, Src: []string{StateConnecting}, Dst: StateDisconnected},
		{Name: EventClose, Src: append([]string{StateConnecting}, live...), Dst: StateDisconnected},
	}
	for _, m := range vehicle.Modes {
		events = append(events, fsm.EventDesc{Name: modeEvent(m), Src: live, Dst: ModeState(m)})
	}

	callbacks := fsm.Callbacks{
		// Guards
		"before_" + EventConnect: fsmutil.WrapEvent(s.guardClaimed),

		// Side-effects
		"enter_" + StateDisconnected: fsmutil.WrapEvent(s.enterDisconnected),
		"enter_state":                fsmutil.WrapEvent(s.logTransition),
	}

	return fsm.NewFSM(StateDisconnected, events, callbacks)
}

// guardClaimed refuses to start dialing a device this role does not hold.
func (s *Session) guardClaimed(ctx context.Context, e *fsm.Event) error {
	device := e.Args[0].(string)
	if owner, ok := s.state.Owner(device); !ok || owner != s.role {
		e.Cancel(fmt.Errorf("device %s is not claimed by %s", device, s.role))
	}
	return nil
}

// enterDisconnected releases the link and the device claim.
func (s *Session) enterDisconnected(ctx context.Context, e *fsm.Event) error {
	s.linkMu.Lock()
	v, device := s.vehicle, s.device
	s.vehicle, s.device = nil, ""
	s.linkMu.Unlock()

	var err error
	if v != nil {
		err = v.Close()
	}
	if device != "" {
		s.state.Release(device)
	}
	return err
}

func (s *Session) logTransition(ctx context.Context, e *fsm.Event) error {
	s.log.Debug("Session state changed", "from", e.Src, "to", e.Dst)
	return nil
}
