// Package countdown implements the live countdown toward an event start.
//
// An Engine re-derives its whole State from the wall clock on every tick,
// so missed or delayed ticks correct themselves on the next one. The only
// memory carried between ticks is whether the previous tick saw the start
// time as passed (for edge-triggered finish detection) and the pending timer
// that clears the just-finished flag.
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventclock/internal/clock"
	appLog "eventclock/internal/log"
)

const (
	DefaultInterval     = time.Second
	DefaultFinishWindow = 3 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithOnFinish sets the callback fired once per crossing of the start time.
// It runs on the ticking goroutine, outside the engine's lock, and must not
// call Tick.
func WithOnFinish(f func()) Option {
	return func(e *Engine) { e.onFinish = f }
}

// WithOnTick sets a listener that receives every recomputed State,
// including the one produced when the just-finished window closes. Same
// restrictions as WithOnFinish.
func WithOnTick(f func(State)) Option {
	return func(e *Engine) { e.onTick = f }
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithFinishWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithLabel names the engine in log lines.
func WithLabel(label string) Option {
	return func(e *Engine) { e.label = label }
}

// Engine is one countdown instance. It is safe for concurrent use; ticks
// are serialized.
type Engine struct {
	clock    clock.Clock
	interval time.Duration
	window   time.Duration
	onFinish func()
	onTick   func(State)
	label    string

	tickMu sync.Mutex

	mu           sync.Mutex
	target       Target
	state        State
	hasStarted   bool
	justFinished bool
	clearTimer   clock.Timer
	gen          uint64
	closed       bool
}

// New builds an engine for t and computes its initial state. The initial
// state never reports JustFinished and a start already in the past never
// fires the finish callback.
func New(t Target, opts ...Option) *Engine {
	e := &Engine{
		clock:    clock.Real{},
		interval: DefaultInterval,
		window:   DefaultFinishWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resetLocked(t)
	return e
}

// State returns the state computed by the latest tick, reset or window
// expiry.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Target() Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// Reset switches the engine to a new target. Any pending just-finished
// window is cancelled and the state is recomputed as on construction.
func (e *Engine) Reset(t Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.resetLocked(t)
}

func (e *Engine) resetLocked(t Target) {
	e.stopClearTimerLocked()
	e.gen++
	now := e.clock.Now()
	e.target = t
	e.hasStarted = started(t, now)
	e.justFinished = false
	e.state = Compute(t, now)
}

// Tick recomputes the state from the current time. If this tick is the
// first to observe the start time as passed, the finish callback fires and
// JustFinished holds for the finish window.
func (e *Engine) Tick() State {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	if e.closed {
		st := e.state
		e.mu.Unlock()
		return st
	}
	now := e.clock.Now()
	nowStarted := started(e.target, now)
	crossed := nowStarted && !e.hasStarted
	e.hasStarted = nowStarted
	if crossed {
		e.justFinished = true
		e.stopClearTimerLocked()
		gen := e.gen
		e.clearTimer = e.clock.AfterFunc(e.window, func() { e.closeWindow(gen) })
	}
	e.state = e.withTransientLocked(Compute(e.target, now))
	st := e.state
	onFinish, onTick := e.onFinish, e.onTick
	e.mu.Unlock()

	if crossed {
		appLog.Debug("countdown crossed start", "label", e.label, "at", now.Format(time.RFC3339))
		e.notifyFinish(onFinish)
	}
	if onTick != nil {
		onTick(st)
	}
	return st
}

// Run ticks every interval until ctx is done, then closes the engine so no
// timer of this engine fires afterwards.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()
	defer e.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			e.Tick()
		}
	}
}

// Close stops the pending just-finished timer. Later ticks and resets are
// no-ops. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.stopClearTimerLocked()
	e.gen++
}

func (e *Engine) closeWindow(gen uint64) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	if e.closed || gen != e.gen || !e.justFinished {
		e.mu.Unlock()
		return
	}
	e.justFinished = false
	e.clearTimer = nil
	e.state = Compute(e.target, e.clock.Now())
	st := e.state
	onTick := e.onTick
	e.mu.Unlock()

	if onTick != nil {
		onTick(st)
	}
}

func (e *Engine) withTransientLocked(st State) State {
	if e.justFinished {
		st.JustFinished = true
		st.Phase = PhaseJustFinished
	}
	return st
}

func (e *Engine) stopClearTimerLocked() {
	if e.clearTimer != nil {
		e.clearTimer.Stop()
		e.clearTimer = nil
	}
}

// notifyFinish runs the finish callback; a panic is logged and swallowed so
// the countdown keeps ticking.
func (e *Engine) notifyFinish(f func()) {
	if f == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("countdown finish callback panicked", fmt.Errorf("%v", r), "label", e.label)
		}
	}()
	f()
}
