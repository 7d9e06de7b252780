package app

import (
	"fmt"
	"os"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/groundpeer/cmd/gpeer-planner/app/options"
	"github.com/autopeer-io/groundpeer/internal/planner"
	"github.com/autopeer-io/groundpeer/pkg/app"
)

const (
	commandName = "gpeer-planner"
	commandDesc = `The groundpeer planner turns the positions clicked on the web map into a
QGC WPL 110 mission file. With --planner.watch it rebuilds the file every time
the clicks file changes.`
)

func NewApp() *app.App {
	opts := options.NewPlannerOptions()
	application := app.NewApp(
		commandName,
		"Build a mission file from map clicks",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.PlannerOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		return planner.NewPlanner(cfg, os.Stdout).Run(ctx)
	}
}
