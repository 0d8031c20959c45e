package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"eventclock/internal/countdown"
	"eventclock/internal/model"
	"eventclock/internal/store"
)

var (
	addTitle       string
	addStart       string
	addEnd         string
	addLocation    string
	addDescription string
	addAllDay      bool

	addFlags = []cli.Flag{
		cli.StringFlag{Name: "title, t", Usage: "event title (required)", Destination: &addTitle},
		cli.StringFlag{Name: "start, s", Usage: "start time, e.g. 2026-03-14T12:00 (required)", Destination: &addStart},
		cli.StringFlag{Name: "end, e", Usage: "end time (optional)", Destination: &addEnd},
		cli.StringFlag{Name: "location, l", Usage: "where it happens", Destination: &addLocation},
		cli.StringFlag{Name: "description, d", Usage: "free-form notes", Destination: &addDescription},
		cli.BoolFlag{Name: "all-day", Usage: "mark as an all-day event", Destination: &addAllDay},
	}
)

func add(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	target, err := countdown.ParseTarget(addStart, addEnd, conf.Location())
	if err != nil {
		return err
	}

	st, err := store.Open(conf.DatabasePath, conf.Location())
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := st.Create(context.Background(), model.Event{
		Title:       addTitle,
		Description: addDescription,
		Location:    addLocation,
		AllDay:      addAllDay,
		Start:       target.Start,
		End:         target.End,
	})
	if err != nil {
		return err
	}

	fmt.Printf("added %s: %q starts %s (%s)\n",
		ev.ID, ev.Title, ev.Start.Format("Mon Jan 2 15:04 MST"), humanize.Time(ev.Start))
	return nil
}

func remove(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(conf.DatabasePath, conf.Location())
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := st.Get(context.Background(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no local event with id %s", id)
	}
	if err != nil {
		return err
	}
	if err := st.Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("removed %s: %q (was %s)\n", id, ev.Title, humanize.Time(ev.Start))
	return nil
}

// remaining renders the time left until t like "3 hours from now", or
// "now" when t has passed.
func remaining(t, now time.Time) string {
	if !t.After(now) {
		return "now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
