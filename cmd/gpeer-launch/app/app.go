package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uitable"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/groundpeer/cmd/gpeer-launch/app/options"
	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/station"
	"github.com/autopeer-io/groundpeer/pkg/app"
	"github.com/autopeer-io/groundpeer/pkg/log"
)

const (
	commandName = "gpeer-launch"
	commandDesc = `gpeer-launch runs the gated two-vehicle launch once: the leader is loaded
and started, then the follower waits until the leader's gate channel is thrown
before it arms, takes a throttle nudge and starts its own mission.`
)

func NewApp() *app.App {
	opts := options.NewLaunchOptions()
	application := app.NewApp(
		commandName,
		"Run the gated two-vehicle launch",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.LaunchOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		enum, dialer := station.Link(opts.SerialOptions)
		if opts.Launch.ListPorts {
			return listPorts(os.Stdout, enum)
		}

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		c := coordinator.New(cfg, dialer, enum, ports.NewState(), logsink.New(64))
		defer func() {
			if err := c.Close(); err != nil {
				log.Error(err, "Failed to close vehicle links")
			}
		}()

		plan := opts.Plan()
		log.Info("Starting launch", "leader", plan.Leader, "follower", plan.Follower)
		if err := c.Launch(ctx, plan); err != nil {
			if errors.Is(err, ctx.Err()) {
				log.Info("Launch interrupted")
			}
			return err
		}
		return nil
	}
}

func listPorts(w io.Writer, enum ports.Enumerator) error {
	devices, err := enum.List()
	if err != nil {
		return fmt.Errorf("failed to list ports: %w", err)
	}

	table := uitable.New()
	table.AddRow("#", "DEVICE")
	for i, d := range devices {
		table.AddRow(i+1, d)
	}
	fmt.Fprintln(w, table)
	return nil
}
