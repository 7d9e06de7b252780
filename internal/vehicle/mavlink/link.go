// Package mavlink implements vehicle.Vehicle over a MAVLink serial link to
// an ArduCopter flight controller.
package mavlink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

const (
	// overrideResend keeps overrides alive; ArduPilot drops them after
	// RC_OVERRIDE_TIME, 3 s by default.
	overrideResend = time.Second

	maxChannels = 18
)

// Link is one MAVLink connection.
type Link struct {
	node   *gomavlib.Node
	device string
	log    log.Logger

	stepTimeout time.Duration

	mu        sync.Mutex
	sysID     uint8
	compID    uint8
	mode      string
	armed     bool
	next      int
	staged    []waypoint.Command
	overrides map[int]int
	listeners map[string]map[int]vehicle.Listener
	nextID    int

	// mission carries MISSION_REQUEST(_INT) and MISSION_ACK to UploadMission.
	mission chan message.Message

	ready     chan struct{}
	readyOnce sync.Once

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ vehicle.Vehicle = (*Link)(nil)

func newLink(node *gomavlib.Node, device string, stepTimeout time.Duration) *Link {
	l := &Link{
		node:        node,
		device:      device,
		log:         log.WithValues("device", device),
		stepTimeout: stepTimeout,
		overrides:   make(map[int]int),
		listeners:   make(map[string]map[int]vehicle.Listener),
		mission:     make(chan message.Message, 16),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}

	l.wg.Add(2)
	go l.readLoop()
	go l.overrideLoop()
	return l
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	for evt := range l.node.Events() {
		if frm, ok := evt.(*gomavlib.EventFrame); ok {
			l.handle(frm)
		}
	}
}

func (l *Link) handle(frm *gomavlib.EventFrame) {
	switch msg := frm.Message().(type) {
	case *common.MessageHeartbeat:
		if msg.Type == common.MAV_TYPE_GCS {
			return
		}
		l.mu.Lock()
		l.sysID, l.compID = frm.SystemID(), frm.ComponentID()
		if name, ok := vehicle.ModeName(msg.CustomMode); ok {
			l.mode = name
		} else {
			l.mode = "MODE(" + strconv.FormatUint(uint64(msg.CustomMode), 10) + ")"
		}
		l.armed = msg.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		l.mu.Unlock()

		l.readyOnce.Do(func() { close(l.ready) })

	case *common.MessageMissionCurrent:
		l.mu.Lock()
		l.next = int(msg.Seq)
		l.mu.Unlock()

	case *common.MessageMissionRequestInt, *common.MessageMissionRequest, *common.MessageMissionAck:
		select {
		case l.mission <- msg:
		default:
			l.log.Warn("Dropping mission protocol message, nobody is uploading")
		}

	case *common.MessageRcChannels:
		l.dispatch(vehicle.Message{Type: vehicle.MessageRCChannels, Fields: channelFields(msg)})
	}
}

func (l *Link) dispatch(msg vehicle.Message) {
	l.mu.Lock()
	fns := slices.Collect(maps.Values(l.listeners[msg.Type]))
	l.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (l *Link) target() (uint8, uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sysID, l.compID
}

func (l *Link) send(msg message.Message) error {
	if err := l.node.WriteMessageAll(msg); err != nil {
		return fmt.Errorf("write %T to %s: %w", msg, l.device, err)
	}
	return nil
}

func (l *Link) command(cmd common.MAV_CMD, params ...float32) error {
	sys, comp := l.target()
	msg := &common.MessageCommandLong{
		TargetSystem:    sys,
		TargetComponent: comp,
		Command:         cmd,
	}
	p := [7]*float32{&msg.Param1, &msg.Param2, &msg.Param3, &msg.Param4, &msg.Param5, &msg.Param6, &msg.Param7}
	for i, v := range params {
		*p[i] = v
	}
	return l.send(msg)
}

func (l *Link) Mode() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

func (l *Link) SetMode(ctx context.Context, name string) error {
	custom, ok := vehicle.ModeNumber(name)
	if !ok {
		return fmt.Errorf("unknown mode %q", name)
	}
	return l.command(common.MAV_CMD_DO_SET_MODE,
		float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), float32(custom))
}

func (l *Link) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

func (l *Link) SetArmed(ctx context.Context, armed bool) error {
	var p1 float32
	if armed {
		p1 = 1
	}
	return l.command(common.MAV_CMD_COMPONENT_ARM_DISARM, p1)
}

func (l *Link) ClearMission(ctx context.Context) error {
	l.mu.Lock()
	l.staged = nil
	l.mu.Unlock()

	sys, comp := l.target()
	return l.send(&common.MessageMissionClearAll{
		TargetSystem:    sys,
		TargetComponent: comp,
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	})
}

func (l *Link) AddMission(cmd waypoint.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.staged = append(l.staged, cmd)
	return nil
}

// UploadMission runs the MISSION_COUNT / MISSION_REQUEST / MISSION_ITEM_INT
// exchange. Item 0 is the home slot, which ArduPilot overwrites; the staged
// commands follow from seq 1.
func (l *Link) UploadMission(ctx context.Context) error {
	l.mu.Lock()
	items := make([]waypoint.Command, 0, len(l.staged)+1)
	items = append(items, waypoint.Command{Command: waypoint.CommandWaypoint, AutoContinue: true})
	items = append(items, l.staged...)
	l.mu.Unlock()

	l.drainMission()

	sys, comp := l.target()
	if err := l.send(&common.MessageMissionCount{
		TargetSystem:    sys,
		TargetComponent: comp,
		Count:           uint16(len(items)),
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	}); err != nil {
		return err
	}

	timer := time.NewTimer(l.stepTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return errors.New("link closed during mission upload")
		case <-timer.C:
			return fmt.Errorf("mission upload to %s stalled for %s", l.device, l.stepTimeout)

		case msg := <-l.mission:
			var seq uint16
			switch m := msg.(type) {
			case *common.MessageMissionRequestInt:
				seq = m.Seq
			case *common.MessageMissionRequest:
				seq = m.Seq
			case *common.MessageMissionAck:
				if m.Type != common.MAV_MISSION_ACCEPTED {
					return fmt.Errorf("mission rejected by %s: %v", l.device, m.Type)
				}
				l.log.Info("Mission accepted", "items", len(items)-1)
				return nil
			}

			if int(seq) >= len(items) {
				return fmt.Errorf("vehicle requested item %d of %d", seq, len(items))
			}
			if err := l.send(missionItem(sys, comp, uint16(seq), items[seq])); err != nil {
				return err
			}
			timer.Reset(l.stepTimeout)
		}
	}
}

func (l *Link) drainMission() {
	for {
		select {
		case <-l.mission:
		default:
			return
		}
	}
}

func missionItem(sys, comp uint8, seq uint16, c waypoint.Command) *common.MessageMissionItemInt {
	return &common.MessageMissionItemInt{
		TargetSystem:    sys,
		TargetComponent: comp,
		Seq:             seq,
		Frame:           common.MAV_FRAME(c.Frame),
		Command:         common.MAV_CMD(c.Command),
		Current:         boolToUint8(c.Current),
		Autocontinue:    boolToUint8(c.AutoContinue),
		Param1:          float32(c.Params[0]),
		Param2:          float32(c.Params[1]),
		Param3:          float32(c.Params[2]),
		Param4:          float32(c.Params[3]),
		X:               int32(math.Round(c.Lat * 1e7)),
		Y:               int32(math.Round(c.Lon * 1e7)),
		Z:               float32(c.Alt),
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	}
}

func (l *Link) NextMissionIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

func (l *Link) SetChannelOverride(channel int, pwm int) error {
	if channel < 1 || channel > maxChannels {
		return fmt.Errorf("channel %d out of range", channel)
	}
	l.mu.Lock()
	l.overrides[channel] = pwm
	l.mu.Unlock()

	return l.sendOverrides(0)
}

func (l *Link) ClearChannelOverride(channel int) error {
	if channel < 1 || channel > maxChannels {
		return fmt.Errorf("channel %d out of range", channel)
	}
	l.mu.Lock()
	delete(l.overrides, channel)
	l.mu.Unlock()

	return l.sendOverrides(channel)
}

// sendOverrides writes the active overrides and, if release is non-zero,
// hands that channel back to the transmitter.
func (l *Link) sendOverrides(release int) error {
	sys, comp := l.target()

	l.mu.Lock()
	active := maps.Clone(l.overrides)
	l.mu.Unlock()

	return l.send(overrideMessage(sys, comp, active, release))
}

// overrideMessage builds RC_CHANNELS_OVERRIDE. On channels 1-8 UINT16_MAX
// means ignore and 0 means release; on 9-18 0 means ignore and UINT16_MAX-1
// means release.
func overrideMessage(sys, comp uint8, active map[int]int, release int) *common.MessageRcChannelsOverride {
	msg := &common.MessageRcChannelsOverride{TargetSystem: sys, TargetComponent: comp}
	ch := [maxChannels]*uint16{
		&msg.Chan1Raw, &msg.Chan2Raw, &msg.Chan3Raw, &msg.Chan4Raw, &msg.Chan5Raw, &msg.Chan6Raw,
		&msg.Chan7Raw, &msg.Chan8Raw, &msg.Chan9Raw, &msg.Chan10Raw, &msg.Chan11Raw, &msg.Chan12Raw,
		&msg.Chan13Raw, &msg.Chan14Raw, &msg.Chan15Raw, &msg.Chan16Raw, &msg.Chan17Raw, &msg.Chan18Raw,
	}
	for i := 0; i < 8; i++ {
		*ch[i] = 0xffff
	}
	for c, pwm := range active {
		*ch[c-1] = uint16(pwm)
	}
	switch {
	case release > 8:
		*ch[release-1] = 0xfffe
	case release > 0:
		*ch[release-1] = 0
	}
	return msg
}

func (l *Link) overrideLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(overrideResend)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			n := len(l.overrides)
			l.mu.Unlock()
			if n == 0 {
				continue
			}
			if err := l.sendOverrides(0); err != nil {
				l.log.Error(err, "Override refresh failed")
			}
		}
	}
}

func (l *Link) AddMessageListener(msgType string, fn vehicle.Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listeners[msgType] == nil {
		l.listeners[msgType] = make(map[int]vehicle.Listener)
	}
	id := l.nextID
	l.nextID++
	l.listeners[msgType][id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners[msgType], id)
	}
}

func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.node.Close()
		l.wg.Wait()
	})
	return nil
}

func channelFields(msg *common.MessageRcChannels) map[string]float64 {
	raw := [maxChannels]uint16{
		msg.Chan1Raw, msg.Chan2Raw, msg.Chan3Raw, msg.Chan4Raw, msg.Chan5Raw, msg.Chan6Raw,
		msg.Chan7Raw, msg.Chan8Raw, msg.Chan9Raw, msg.Chan10Raw, msg.Chan11Raw, msg.Chan12Raw,
		msg.Chan13Raw, msg.Chan14Raw, msg.Chan15Raw, msg.Chan16Raw, msg.Chan17Raw, msg.Chan18Raw,
	}
	fields := make(map[string]float64, len(raw))
	for i, v := range raw {
		fields[vehicle.ChannelField(i+1)] = float64(v)
	}
	return fields
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
