package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli"

	"eventclock/internal/board"
	"eventclock/internal/eventtime"
)

var (
	listShowEnded bool
	listJSON      bool

	listFlags = []cli.Flag{
		cli.BoolFlag{
			Name:        "ended, e",
			Usage:       "include ended events (default: false)",
			Destination: &listShowEnded,
		},
		cli.BoolFlag{
			Name:        "json",
			Usage:       "print the board snapshot as JSON",
			Destination: &listJSON,
		},
	}
)

func list(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openServices(conf)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.refresher.Refresh(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	snap := svc.board.Snapshot()

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(os.Stdout, snap, listShowEnded)
	return nil
}

// printSnapshot writes one block per bucket: ongoing first, then today,
// upcoming and (optionally) ended.
func printSnapshot(w io.Writer, snap board.Snapshot, showEnded bool) {
	if snap.Len() == 0 {
		fmt.Fprintln(w, "eventclock: no events found")
		return
	}

	sections := []struct {
		name  eventtime.Category
		items []board.Item
	}{
		{eventtime.CategoryOngoing, snap.Ongoing},
		{eventtime.CategoryToday, snap.Today},
		{eventtime.CategoryUpcoming, snap.Upcoming},
	}
	if showEnded {
		sections = append(sections, struct {
			name  eventtime.Category
			items []board.Item
		}{eventtime.CategoryEnded, snap.Ended})
	}

	for _, sec := range sections {
		if len(sec.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", strings.ToUpper(string(sec.name)), len(sec.items))
		for _, it := range sec.items {
			fmt.Fprintf(w, "  %-12s %-8s %-40s %s\n",
				eventtime.Clock(it.State.Days, it.State.Hours, it.State.Minutes, it.State.Seconds),
				it.Urgency,
				truncate(it.Event.Title, 40),
				describe(it, snap),
			)
		}
		fmt.Fprintln(w)
	}
}

func describe(it board.Item, snap board.Snapshot) string {
	ev := it.Event
	switch {
	case it.State.IsRunning:
		return "ends " + eventtime.RelativeLabel(ev.End, snap.At)
	case it.State.IsExpired:
		return "ended " + eventtime.RelativeLabel(ev.EffectiveEnd(), snap.At)
	default:
		return "starts " + eventtime.RelativeLabel(ev.Start, snap.At)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
