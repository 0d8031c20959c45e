package main

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/urfave/cli"

	"eventclock/internal/countdown"
	"eventclock/internal/eventtime"
)

// countdownCmd runs a single engine in the terminal until the target has
// started and the just-finished window has passed, or until interrupted.
func countdownCmd(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	target, err := countdown.ParseTarget(c.Args().Get(0), c.Args().Get(1), conf.Location())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := os.Stdout
	var sawFinish atomic.Bool
	eng := countdown.New(target,
		countdown.WithInterval(conf.TickInterval.Std()),
		countdown.WithFinishWindow(conf.FinishWindow.Std()),
		countdown.WithLabel("cli"),
		countdown.WithOnFinish(func() {
			sawFinish.Store(true)
			fmt.Fprint(out, "\a")
		}),
		countdown.WithOnTick(func(st countdown.State) {
			printState(out, st)
			// The window closing is the last interesting moment.
			if sawFinish.Load() && !st.JustFinished {
				cancel()
			}
		}),
	)

	st := eng.State()
	printState(out, st)
	if st.IsExpired {
		fmt.Fprintln(out)
		return nil
	}
	err = eng.Run(ctx)
	fmt.Fprintln(out)
	return err
}

func printState(w io.Writer, st countdown.State) {
	clock := eventtime.Clock(st.Days, st.Hours, st.Minutes, st.Seconds)
	var line string
	switch {
	case st.Invalid:
		line = "invalid target"
	case st.JustFinished:
		line = "*** started! ***"
	case st.IsRunning:
		line = "running for " + clock
	case st.IsExpired:
		line = "ended " + clock + " ago"
	default:
		line = fmt.Sprintf("%s  [%s, %s]", clock, st.Phase, eventtime.Urgency(st.TotalSecondsRemaining))
	}
	fmt.Fprintf(w, "\r\033[K%s", line)
}
