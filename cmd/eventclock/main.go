package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "0.1.0-dev"

const description = `eventclock collects events from iCalendar feeds and a local store,
keeps a live countdown for each one and shows them bucketed into
today / upcoming / ongoing / ended.`

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "eventclock:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "eventclock"
	app.HelpName = "eventclock"
	app.Usage = "live countdowns for your calendar"
	app.UsageText = "eventclock [global options] <command> [arguments...]"
	app.Description = description
	app.Version = version
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the web server and scheduled feed refresh",
			Action: serve,
		},
		{
			Name:    "list",
			Aliases: []string{"l"},
			Usage:   "print events by category",
			Action:  list,
			Flags:   listFlags,
		},
		{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "show progress bars counting down to upcoming events",
			Action:  watch,
			Flags:   watchFlags,
		},
		{
			Name:      "countdown",
			Aliases:   []string{"c"},
			Usage:     "count down to an ad-hoc time",
			ArgsUsage: "<start> [end]",
			Action:    countdownCmd,
		},
		{
			Name:   "add",
			Usage:  "add a local event",
			Action: add,
			Flags:  addFlags,
		},
		{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "remove a local event",
			ArgsUsage: "<id>",
			Action:    remove,
		},
		{
			Name:   "snapshot",
			Usage:  "save a PNG of the board page (needs a running server)",
			Action: snapshot,
			Flags:  snapshotFlags,
		},
	}
	app.Action = serve
	return app
}
