package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"eventclock/internal/board"
	"eventclock/internal/countdown"
	"eventclock/internal/eventtime"
	"eventclock/internal/model"
)

var (
	watchLimit  int
	watchWindow time.Duration

	watchFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "limit, n",
			Usage:       "number of events to watch",
			Value:       5,
			Destination: &watchLimit,
		},
		cli.DurationFlag{
			Name:        "window, w",
			Usage:       "bars fill over this much time before each start",
			Value:       time.Hour,
			Destination: &watchWindow,
		},
	}
)

// watchBar follows one event. The bar fills from 0 to total (seconds of
// the window) as the start approaches and completes at the crossing.
type watchBar struct {
	event model.Event
	total int64
	bar   *mpb.Bar
	done  bool
}

func watch(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openServices(conf)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := svc.refresher.Refresh(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	snap := svc.board.Snapshot()
	items := append(append([]board.Item{}, snap.Today...), snap.Upcoming...)
	if len(items) > watchLimit {
		items = items[:watchLimit]
	}
	if len(items) == 0 {
		fmt.Println("eventclock: nothing upcoming to watch")
		return nil
	}

	notices, unsubscribe := svc.board.Subscribe()
	defer unsubscribe()

	p := mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithRefreshRate(200*time.Millisecond))
	bars := make(map[string]*watchBar, len(items))
	for _, it := range items {
		wb := newWatchBar(p, svc.board, it.Event, watchWindow)
		bars[it.Event.InstanceKey] = wb
	}

	ticker := time.NewTicker(conf.TickInterval.Std())
	defer ticker.Stop()

	for pending := pendingBars(bars); pending > 0; {
		select {
		case <-ctx.Done():
			for _, wb := range bars {
				if !wb.done {
					wb.bar.Abort(false)
				}
			}
			p.Wait()
			return nil
		case n, ok := <-notices:
			if !ok {
				return nil
			}
			if wb, found := bars[n.Event.InstanceKey]; found && !wb.done {
				wb.finish()
				pending--
			}
		case <-ticker.C:
			for key, wb := range bars {
				if wb.done {
					continue
				}
				st, ok := svc.board.State(key)
				if !ok {
					continue
				}
				if wb.update(st) {
					pending--
				}
			}
		}
	}
	p.Wait()
	fmt.Println("eventclock: all watched events have started")
	return nil
}

// pendingBars counts bars still waiting for their start. A bar can
// complete during construction when its event starts right away.
func pendingBars(bars map[string]*watchBar) int {
	n := 0
	for _, wb := range bars {
		if !wb.done {
			n++
		}
	}
	return n
}

func newWatchBar(p *mpb.Progress, b *board.Board, ev model.Event, window time.Duration) *watchBar {
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	total := int64(window / time.Second)
	if total <= 0 {
		total = 1
	}

	name := truncate(ev.Title, 24)
	key := ev.InstanceKey
	bar := p.New(total,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 25, C: decor.DindentRight}),
			decor.OnComplete(
				decor.Any(func(decor.Statistics) string {
					st, _ := b.State(key)
					return eventtime.Clock(st.Days, st.Hours, st.Minutes, st.Seconds)
				}, decor.WC{W: 12}),
				"started!",
			),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return remaining(ev.Start, time.Now())
			}),
		),
	)

	wb := &watchBar{event: ev, total: total, bar: bar}
	if st, ok := b.State(key); ok {
		wb.update(st)
	}
	return wb
}

// update moves the bar to reflect the seconds left before start and
// reports whether this call completed it.
func (wb *watchBar) update(st countdown.State) bool {
	if st.IsExpired {
		return wb.finish()
	}
	left := st.TotalSecondsRemaining
	if left > wb.total {
		left = wb.total
	}
	cur := wb.total - left
	if cur >= wb.total {
		// Keep the bar open until the start is observed.
		cur = wb.total - 1
	}
	wb.bar.SetCurrent(cur)
	return false
}

func (wb *watchBar) finish() bool {
	if wb.done {
		return false
	}
	wb.done = true
	wb.bar.SetCurrent(wb.total)
	return true
}
