package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/groundpeer/cmd/gpeer-station/app/options"
	"github.com/autopeer-io/groundpeer/pkg/app"
)

const (
	commandName = "gpeer-station"
	commandDesc = `The groundpeer station connects the mother, top and bottom drones,
runs operator actions against them and reports every step as a status line.
Actions arrive over the HTTP control API or the MQTT command topics.`
)

func NewApp() *app.App {
	opts := options.NewStationOptions()
	application := app.NewApp(
		commandName,
		"Launch a groundpeer ground station",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.StationOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		station, err := cfg.NewStation()
		if err != nil {
			return fmt.Errorf("failed to create station: %w", err)
		}

		return station.Run(ctx)
	}
}
