// Package board keeps one live countdown per displayed event and serves
// categorized snapshots of them.
package board

import (
	"context"
	"sync"
	"time"

	"eventclock/internal/clock"
	"eventclock/internal/countdown"
	"eventclock/internal/eventtime"
	appLog "eventclock/internal/log"
	"eventclock/internal/model"
)

// NoticeStarted is sent when an event's countdown crosses its start time.
const NoticeStarted = "started"

// Notice is pushed to subscribers when something happens to an event.
type Notice struct {
	Kind  string      `json:"kind"`
	Event model.Event `json:"event"`
	At    time.Time   `json:"at"`
}

// Item is one event on the board with its current countdown.
type Item struct {
	Event   model.Event            `json:"event"`
	State   countdown.State        `json:"state"`
	Urgency eventtime.UrgencyLevel `json:"urgency"`
}

// Snapshot is the board at one instant, bucketed and ordered.
type Snapshot struct {
	At       time.Time `json:"at"`
	Today    []Item    `json:"today"`
	Upcoming []Item    `json:"upcoming"`
	Ongoing  []Item    `json:"ongoing"`
	Ended    []Item    `json:"ended"`
}

// Len returns the number of items across all buckets.
func (s Snapshot) Len() int {
	return len(s.Today) + len(s.Upcoming) + len(s.Ongoing) + len(s.Ended)
}

type Options struct {
	Clock        clock.Clock
	TickInterval time.Duration
	FinishWindow time.Duration

	// NoticeBuffer is the channel size handed to each subscriber.
	NoticeBuffer int
}

type entry struct {
	event  model.Event
	engine *countdown.Engine
	cancel context.CancelFunc
}

type Board struct {
	clock    clock.Clock
	interval time.Duration
	window   time.Duration
	noticeSz int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	subMu   sync.Mutex
	subs    map[int]chan Notice
	nextSub int
}

func New(opts Options) *Board {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = countdown.DefaultInterval
	}
	if opts.FinishWindow <= 0 {
		opts.FinishWindow = countdown.DefaultFinishWindow
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Board{
		clock:    opts.Clock,
		interval: opts.TickInterval,
		window:   opts.FinishWindow,
		noticeSz: opts.NoticeBuffer,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
		subs:     make(map[int]chan Notice),
	}
}

// Sync makes the board show exactly events. Engines are keyed by
// InstanceKey: new keys start an engine, keys whose start or end moved get
// their engine reset, and keys no longer present are torn down.
func (b *Board) Sync(events []model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	seen := make(map[string]bool, len(events))
	added, reset := 0, 0
	for _, ev := range events {
		key := ev.InstanceKey
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if e, ok := b.entries[key]; ok {
			if !e.event.Start.Equal(ev.Start) || !e.event.End.Equal(ev.End) {
				e.engine.Reset(targetOf(ev))
				reset++
			}
			e.event = ev
			continue
		}
		b.startLocked(ev)
		added++
	}

	removed := 0
	for key, e := range b.entries {
		if seen[key] {
			continue
		}
		e.cancel()
		e.engine.Close()
		delete(b.entries, key)
		removed++
	}

	appLog.Debug("board synced", "events", len(b.entries), "added", added, "reset", reset, "removed", removed)
}

func (b *Board) startLocked(ev model.Event) {
	key := ev.InstanceKey
	eng := countdown.New(targetOf(ev),
		countdown.WithClock(b.clock),
		countdown.WithInterval(b.interval),
		countdown.WithFinishWindow(b.window),
		countdown.WithLabel(key),
		countdown.WithOnFinish(func() { b.announce(key) }),
	)
	ctx, cancel := context.WithCancel(b.ctx)
	b.entries[key] = &entry{event: ev, engine: eng, cancel: cancel}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = eng.Run(ctx)
	}()
}

func targetOf(ev model.Event) countdown.Target {
	return countdown.Target{Start: ev.Start, End: ev.End}
}

func (b *Board) announce(key string) {
	b.mu.Lock()
	e, ok := b.entries[key]
	var ev model.Event
	if ok {
		ev = e.event
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	appLog.Info("event started", "key", key, "title", ev.Title)
	b.publish(Notice{Kind: NoticeStarted, Event: ev, At: b.clock.Now()})
}

// Subscribe returns a channel of notices and a func that unsubscribes and
// closes it. A subscriber that falls behind misses notices.
func (b *Board) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, b.noticeSz)

	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subMu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			b.subMu.Unlock()
		})
	}
}

func (b *Board) publish(n Notice) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			appLog.Warn("notice dropped for slow subscriber", "subscriber", id, "key", n.Event.InstanceKey)
		}
	}
}

// Tick recomputes every engine now instead of waiting for its ticker.
func (b *Board) Tick() {
	b.mu.Lock()
	engines := make([]*countdown.Engine, 0, len(b.entries))
	for _, e := range b.entries {
		engines = append(engines, e.engine)
	}
	b.mu.Unlock()

	for _, eng := range engines {
		eng.Tick()
	}
}

// Events returns the events currently on the board, in no particular order.
func (b *Board) Events() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Event, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.event)
	}
	return out
}

// State returns the countdown state of one event.
func (b *Board) State(key string) (countdown.State, bool) {
	b.mu.Lock()
	e, ok := b.entries[key]
	b.mu.Unlock()
	if !ok {
		return countdown.State{}, false
	}
	return e.engine.State(), true
}

// Snapshot buckets every event at the current clock time and computes each
// state at that same time. The just-finished flag is taken from the engine.
func (b *Board) Snapshot() Snapshot {
	now := b.clock.Now()

	b.mu.Lock()
	events := make([]model.Event, 0, len(b.entries))
	finished := make(map[string]bool, len(b.entries))
	for key, e := range b.entries {
		events = append(events, e.event)
		finished[key] = e.engine.State().JustFinished
	}
	b.mu.Unlock()

	buckets := eventtime.Categorize(events, now)
	eventtime.SortBuckets(buckets)

	items := func(list []model.Event) []Item {
		out := make([]Item, 0, len(list))
		for _, ev := range list {
			// Bucket and state come from the same instant. Only the
			// just-finished window is owned by the engine.
			st := countdown.Compute(targetOf(ev), now)
			if finished[ev.InstanceKey] {
				st.JustFinished = true
				st.Phase = countdown.PhaseJustFinished
			}
			out = append(out, Item{
				Event:   ev,
				State:   st,
				Urgency: eventtime.UrgencyAt(ev.Start, now),
			})
		}
		return out
	}
	return Snapshot{
		At:       now,
		Today:    items(buckets.Today),
		Upcoming: items(buckets.Upcoming),
		Ongoing:  items(buckets.Ongoing),
		Ended:    items(buckets.Ended),
	}
}

// Close stops every engine and closes all subscriber channels.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for key, e := range b.entries {
		e.cancel()
		e.engine.Close()
		delete(b.entries, key)
	}
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	b.subMu.Lock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.subMu.Unlock()
}
