package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/groundpeer/cmd/gpeer-planner/app"
)

func main() {
	app.NewApp().Run()
}
