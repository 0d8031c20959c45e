package main

import (
	"github.com/urfave/cli"

	appLog "eventclock/internal/log"
	"eventclock/internal/web"
)

func serve(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	appLog.Info("eventclock starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"backfill_days", conf.BackfillDays,
		"tick_interval", conf.TickInterval.Std().String(),
		"finish_window", conf.FinishWindow.Std().String(),
		"ics_count", len(conf.ICS),
	)

	svc, err := openServices(conf)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	refreshDone := make(chan error, 1)
	go func() { refreshDone <- svc.refresher.Start(ctx) }()

	srv := web.NewServer(web.Options{
		Config:    conf,
		Board:     svc.board,
		Store:     svc.store,
		Refresher: svc.refresher,
	})
	serveErr := srv.ListenAndServe(ctx)
	if serveErr != nil {
		appLog.Error("HTTP server stopped", serveErr)
	}

	cancel()
	if err := <-refreshDone; err != nil {
		appLog.Error("refresher stopped", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	appLog.Info("eventclock exiting")
	return serveErr
}
