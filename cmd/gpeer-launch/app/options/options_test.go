package options

import (
	"testing"
	"time"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
)

func TestPlanFromFlags(t *testing.T) {
	o := NewLaunchOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if got, want := o.Plan(), coordinator.DefaultLaunchPlan(); got != want {
		t.Errorf("default plan = %+v, want %+v", got, want)
	}

	o.Launch.Follower = "top"
	o.Launch.GateChannel = 9
	o.Launch.NudgeHold = time.Second
	p := o.Plan()
	if p.Follower != coordinator.RoleTop || p.GateField != "chan9_raw" || p.NudgeHold != time.Second {
		t.Errorf("plan = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LaunchOptions)
	}{
		{name: "same roles", mutate: func(o *LaunchOptions) { o.Launch.Follower = o.Launch.Leader }},
		{name: "gate channel", mutate: func(o *LaunchOptions) { o.Launch.GateChannel = 0 }},
		{name: "gate interval", mutate: func(o *LaunchOptions) { o.Launch.GateInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewLaunchOptions()
			tt.mutate(o)
			if err := o.Validate(); err == nil {
				t.Error("Validate() succeeded")
			}
		})
	}
}
