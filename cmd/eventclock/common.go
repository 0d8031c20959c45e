package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"eventclock/internal/board"
	"eventclock/internal/config"
	"eventclock/internal/ics"
	appLog "eventclock/internal/log"
	"eventclock/internal/store"
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to config file",
		Value:  "./eventclock.yaml",
		EnvVar: "EVENTCLOCK_CONFIG",
	},
	cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP listen address (overrides config if set)",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error (overrides config if set)",
	},
}

// loadConfig reads the config named by the global flags and applies the
// flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	conf, err := config.Load(path)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", path)
		return nil, err
	}
	if listen := c.GlobalString("listen"); listen != "" {
		conf.Listen = listen
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		conf.LogLevel = lvl
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	return conf, nil
}

// services bundles what every board-backed command needs.
type services struct {
	conf      *config.Config
	store     *store.Store
	board     *board.Board
	refresher *board.Refresher
}

func openServices(conf *config.Config) (*services, error) {
	loc := conf.Location()
	st, err := store.Open(conf.DatabasePath, loc)
	if err != nil {
		return nil, err
	}

	b := board.New(board.Options{
		TickInterval: conf.TickInterval.Std(),
		FinishWindow: conf.FinishWindow.Std(),
	})

	feeds := make([]ics.Source, 0, len(conf.ICS))
	for _, src := range conf.ICS {
		if src.URL == "" {
			continue
		}
		feeds = append(feeds, ics.Source{ID: src.SourceID(), URL: src.URL})
	}

	ref := board.NewRefresher(b, board.RefresherConfig{
		Spec:     conf.RefreshCron,
		Location: loc,
		Horizon:  time.Duration(conf.HorizonDays) * 24 * time.Hour,
		Backfill: time.Duration(conf.BackfillDays) * 24 * time.Hour,
	},
		&board.FeedSource{
			Fetcher:  ics.NewFetcher(conf.CacheDir),
			Feeds:    feeds,
			Location: loc,
		},
		&board.LocalSource{Store: st, Location: loc},
	)

	return &services{conf: conf, store: st, board: b, refresher: ref}, nil
}

func (r *services) Close() {
	r.board.Close()
	if err := r.store.Close(); err != nil {
		appLog.Error("failed to close store", err)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
