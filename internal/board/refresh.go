package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eventclock/internal/clock"
	appLog "eventclock/internal/log"
	"eventclock/internal/model"
)

type RefresherConfig struct {
	// Spec is a standard 5-field cron expression.
	Spec     string
	Location *time.Location

	// The window loaded is [now-Backfill, now+Horizon].
	Horizon  time.Duration
	Backfill time.Duration

	Clock clock.Clock
}

// Refresher reloads every source into the board on a cron schedule.
type Refresher struct {
	board   *Board
	sources []Source
	cfg     RefresherConfig
	cron    *cron.Cron

	mu       sync.Mutex
	lastRun  time.Time
	lastErrs int
}

func NewRefresher(b *Board, cfg RefresherConfig, sources ...Source) *Refresher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Refresher{
		board:   b,
		sources: sources,
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(cfg.Location)),
	}
}

// Refresh loads all sources and syncs the board. A failing source is
// logged and skipped; its events are dropped from the board until it
// recovers. The returned error reports whether any source failed.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Clock.Now().In(r.cfg.Location)
	from, to := now.Add(-r.cfg.Backfill), now.Add(r.cfg.Horizon)

	var (
		events []model.Event
		failed []string
	)
	for _, src := range r.sources {
		evs, err := src.Events(ctx, from, to)
		if err != nil {
			appLog.Error("source refresh failed", err, "source", src.Name())
			failed = append(failed, src.Name())
			continue
		}
		events = append(events, evs...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	r.board.Sync(events)
	r.lastRun = now
	r.lastErrs = len(failed)

	appLog.Info("board refreshed",
		"events", len(events),
		"range_start", from.Format(time.RFC3339),
		"range_end", to.Format(time.RFC3339),
		"failed_sources", len(failed),
	)
	if len(failed) > 0 {
		return fmt.Errorf("refresh: %d source(s) failed: %v", len(failed), failed)
	}
	return nil
}

// LastRun returns when the last refresh finished and how many sources failed.
func (r *Refresher) LastRun() (time.Time, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun, r.lastErrs
}

// Start refreshes once, then on every cron firing until ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.Spec, func() { _ = r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	_ = r.Refresh(ctx)

	r.cron.Start()
	appLog.Info("refresher started", "spec", r.cfg.Spec, "timezone", r.cfg.Location.String())

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	appLog.Info("refresher stopped")
	return nil
}
