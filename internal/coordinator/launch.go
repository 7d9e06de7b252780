package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// LaunchPlan describes the gated two-vehicle launch. The leader flies
// first; the follower arms only after the leader's gate field crosses
// GateThreshold, typically when the operator throws a switch on the leader's
// transmitter.
type LaunchPlan struct {
	Leader   Role `json:"leader" yaml:"leader"`
	Follower Role `json:"follower" yaml:"follower"`

	LeaderMission   string `json:"leaderMission" yaml:"leaderMission"`
	FollowerMission string `json:"followerMission" yaml:"followerMission"`

	GateMessage   string        `json:"gateMessage" yaml:"gateMessage"`
	GateField     string        `json:"gateField" yaml:"gateField"`
	GateThreshold float64       `json:"gateThreshold" yaml:"gateThreshold"`
	GateInterval  time.Duration `json:"gateInterval" yaml:"gateInterval"`

	NudgePWM  int           `json:"nudgePWM" yaml:"nudgePWM"`
	NudgeHold time.Duration `json:"nudgeHold" yaml:"nudgeHold"`
}

// DefaultLaunchPlan gates the bottom vehicle on the mother's RC channel 8.
func DefaultLaunchPlan() LaunchPlan {
	return LaunchPlan{
		Leader:          RoleMother,
		Follower:        RoleBottom,
		LeaderMission:   "drone1.waypoints",
		FollowerMission: "drone2.waypoints",
		GateMessage:     vehicle.MessageRCChannels,
		GateField:       vehicle.ChannelField(vehicle.ChannelServo),
		GateThreshold:   1900,
		GateInterval:    time.Second,
		NudgePWM:        100,
		NudgeHold:       2 * time.Second,
	}
}

// Validate checks the plan before anything is dialed.
func (p LaunchPlan) Validate() error {
	var errs []error
	if p.Leader == "" || p.Follower == "" {
		errs = append(errs, errors.New("leader and follower are required"))
	}
	if p.Leader == p.Follower {
		errs = append(errs, errors.New("leader and follower must differ"))
	}
	if p.LeaderMission == "" || p.FollowerMission == "" {
		errs = append(errs, errors.New("both mission files are required"))
	}
	if p.GateMessage == "" || p.GateField == "" {
		errs = append(errs, errors.New("gate message and field are required"))
	}
	if p.GateInterval <= 0 {
		errs = append(errs, errors.New("gate interval must be positive"))
	}
	if p.NudgeHold < 0 {
		errs = append(errs, errors.New("nudge hold must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrValidation, err)
	}
	return nil
}

// Launch runs plan once. The leader is connected, loaded and started
// unconditionally. The follower is connected on a different device, waits
// on the gate, then arms, gets a throttle nudge, loads its own mission and
// starts it. The first failing step ends the launch.
func (c *Coordinator) Launch(ctx context.Context, plan LaunchPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	for _, r := range []Role{plan.Leader, plan.Follower} {
		if _, err := c.ParseRole(string(r)); err != nil {
			return err
		}
	}

	leaderName, followerName := string(plan.Leader), string(plan.Follower)

	leader, err := c.Connect(ctx, plan.Leader, true)
	if err != nil {
		return c.fail(leaderName, "connect", err)
	}
	if err := leader.UploadMissionFile(ctx, c.MissionPath(plan.LeaderMission)); err != nil {
		return c.fail(leaderName, "upload", err)
	}
	if err := leader.Launch(ctx); err != nil {
		return c.fail(leaderName, "start", err)
	}
	c.sink.Reportf(leaderName, "start", "%s mission started", plan.Leader)

	follower, err := c.Connect(ctx, plan.Follower, true)
	if err != nil {
		return c.fail(followerName, "connect", err)
	}

	c.sink.Reportf(followerName, "gate", "Waiting for %s %s >= %v", plan.Leader, plan.GateField, plan.GateThreshold)
	if err := WaitForTelemetryThreshold(ctx, leader, plan.GateMessage, plan.GateField, plan.GateThreshold, plan.GateInterval); err != nil {
		return c.fail(followerName, "gate", err)
	}

	if err := follower.SetMode(ctx, vehicle.ModeStabilize); err != nil {
		return c.fail(followerName, "arm", err)
	}
	if err := follower.Arm(ctx); err != nil {
		return c.fail(followerName, "arm", err)
	}
	if err := follower.ThrottleNudge(ctx, plan.NudgePWM, plan.NudgeHold); err != nil {
		return c.fail(followerName, "nudge", err)
	}
	if err := follower.UploadMissionFile(ctx, c.MissionPath(plan.FollowerMission)); err != nil {
		return c.fail(followerName, "upload", err)
	}
	if err := follower.StartMission(ctx); err != nil {
		return c.fail(followerName, "start", err)
	}

	c.sink.Reportf(followerName, "start", "%s mission started, launch complete", plan.Follower)
	return nil
}

func (c *Coordinator) fail(role, step string, err error) error {
	c.sink.Report(role, step, fmt.Sprintf("Launch %s failed", step), err)
	return fmt.Errorf("launch: %s %s: %w", role, step, err)
}
